package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/staticafi/predator/internal/engine"
	"github.com/staticafi/predator/internal/plot"
	"github.com/staticafi/predator/internal/report"
	"github.com/staticafi/predator/internal/transfer"
)

func newPlotCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "plot <fixture.json> <function>",
		Short: "run the engine and write a .dot file per reached heap (spec.md §6 \"Heap plot\")",
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
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}

			rep := report.NewCollector()
			eng := engine.New(cfg, transfer.New(), rep)
			entry := engine.InitialHeap(storage, fn)
			m, runErr := eng.Run(fn, entry)

			count := 0
			for _, bb := range m.Blocks() {
				st := m.At(bb)
				for i := 0; i < st.Size(); i++ {
					h := st.At(i)
					path := filepath.Join(outDir, fmt.Sprintf("%s-heap%d.dot", bb.Name, h.DebugID()))
					f, err := os.Create(path)
					if err != nil {
						return err
					}
					err = plot.Write(f, h)
					f.Close()
					if err != nil {
						return err
					}
					count++
				}
			}
			fmt.Fprintf(os.Stderr, "wrote %d heap plots to %s\n", count, outDir)
			if runErr != nil {
				fmt.Fprintf(os.Stderr, "plot: engine stopped early: %v\n", runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "plots", "directory to write .dot files into")
	return cmd
}
