package main

import (
	"os"
	"text/tabwriter"

	"fmt"

	"github.com/spf13/cobra"

	"github.com/staticafi/predator/internal/engine"
	"github.com/staticafi/predator/internal/report"
	"github.com/staticafi/predator/internal/transfer"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <fixture.json> <function>",
		Short: "run the engine and print per-block lookup/heap-count counters",
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

			rep := report.NewCollector()
			eng := engine.New(cfg, transfer.New(), rep)
			entry := engine.InitialHeap(storage, fn)
			m, runErr := eng.Run(fn, entry)

			t := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(t, "block\tlookups\theaps\treuse\n")
			for _, bs := range m.Stats() {
				fmt.Fprintf(t, "%s\t%d\t%d\t%v\n", bs.Block.Name, bs.Lookups, bs.Heaps, bs.AnyReuse)
			}
			t.Flush()

			if runErr != nil {
				fmt.Fprintf(os.Stderr, "stats: engine stopped early: %v\n", runErr)
			}
			return nil
		},
	}
}
