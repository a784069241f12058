package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/staticafi/predator/internal/engine"
	"github.com/staticafi/predator/internal/report"
	"github.com/staticafi/predator/internal/transfer"
)

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <fixture.json> <function>",
		Short: "run the fixed-point engine over one function and print any reported errors",
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
			if _, err := eng.Run(fn, entry); err != nil {
				fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
			}

			entries := rep.Entries()
			if len(entries) == 0 {
				fmt.Fprintln(os.Stdout, "no issues found")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintln(os.Stdout, e.String())
			}
			return nil
		},
	}
}
