package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/staticafi/predator/internal/config"
	"github.com/staticafi/predator/internal/engine"
	"github.com/staticafi/predator/internal/ir"
	"github.com/staticafi/predator/internal/plot"
	"github.com/staticafi/predator/internal/report"
	"github.com/staticafi/predator/internal/transfer"
)

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl <fixture.json> <function>",
		Short: "interactively step the block scheduler and inspect reached heaps",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromFlags(cmd)
			if err != nil {
				return err
			}
			storage, err := loadStorage(args[0])
			if err != nil {
				return err
			}
			fn, err := findFunc(storage, args[1])
			if err != nil {
				return err
			}
			return runRepl(cfg, storage, fn)
		},
	}
}

// runRepl steps fn's analysis one block at a time under operator
// control, printing the heaps held at the last visited block and the
// errors reported so far (location and kind only; the trace node behind
// an error is not printed). This is spec.md's interactive-exploration
// ambient concern; the teacher's sibling ogle debugger uses readline
// the same way.
func runRepl(cfg config.Config, storage *ir.Storage, fn *ir.Function) error {
	rl, err := readline.New("predator> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	rep := report.NewCollector()
	eng := engine.New(cfg, transfer.New(), rep)
	entry := engine.InitialHeap(storage, fn)
	m, s := eng.Seed(fn, entry)

	var last *ir.BasicBlock
	fmt.Fprintln(rl.Stdout(), "stepping", fn.Name, "-- type 'help' for commands")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "help":
			fmt.Fprintln(rl.Stdout(), "commands: step, heaps, plot <n>, errors, quit")

		case "step":
			bb, ok, stepErr := eng.Step(fn, m, s)
			if !ok {
				fmt.Fprintln(rl.Stdout(), "fixed point reached, nothing left to schedule")
				continue
			}
			last = bb
			fmt.Fprintf(rl.Stdout(), "visited %s, %d heap(s) now held there\n", bb.Name, m.At(bb).Size())
			if stepErr != nil {
				fmt.Fprintf(rl.Stdout(), "engine fault: %v\n", stepErr)
			}

		case "heaps":
			if last == nil {
				fmt.Fprintln(rl.Stdout(), "no block visited yet; run 'step' first")
				continue
			}
			st := m.At(last)
			for i := 0; i < st.Size(); i++ {
				fmt.Fprintf(rl.Stdout(), "  [%d] heap #%d, generation %d\n", i, st.At(i).DebugID(), st.At(i).Generation())
			}

		case "plot":
			if last == nil || len(fields) != 2 {
				fmt.Fprintln(rl.Stdout(), "usage: plot <heap-index> (after 'step')")
				continue
			}
			idx, err := strconv.Atoi(fields[1])
			if err != nil || idx < 0 || idx >= m.At(last).Size() {
				fmt.Fprintln(rl.Stdout(), "no such heap index")
				continue
			}
			if err := plot.Write(os.Stdout, m.At(last).At(idx)); err != nil {
				fmt.Fprintf(rl.Stdout(), "plot: %v\n", err)
			}

		case "errors":
			for _, e := range rep.Entries() {
				fmt.Fprintln(rl.Stdout(), e.String())
			}

		case "quit", "exit":
			return nil

		default:
			fmt.Fprintf(rl.Stdout(), "unknown command %q; type 'help'\n", fields[0])
		}
	}
}
