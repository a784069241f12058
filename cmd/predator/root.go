// The predator tool drives the symbolic-heap fixed-point engine over a
// lowered-IR fixture from the command line: run it to a fixed point,
// plot the heaps it reaches, or step it one block at a time.
// Run "predator help" for a list of commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/staticafi/predator/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "predator: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "predator",
		Short:         "symbolic-heap shape analyzer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().Int("join-policy", int(config.JoinAlways),
		"joinOnLoopEdgesOnly: -1 never join, 0 join at every insert, 1 entailment only, 2 widen on loop edges, >=3 also bypass isomorphism on straight-line blocks")
	root.PersistentFlags().Int("live-ordering", int(config.LiveOrderingOnJoin),
		"stateLiveOrdering: 0 disable, 1 rotate on join, 2 rotate on isomorphism too")
	root.PersistentFlags().Bool("forbid-heap-replace", false, "disable the right-covers replacement case")
	root.PersistentFlags().Bool("allow-cyclic-trace", false, "allow trace nodes to form cycles via in-place replace")
	root.PersistentFlags().Int("limit-depth", 0, "refuse insert once a heap's generation exceeds this (0: unlimited)")
	root.PersistentFlags().String("sched", "prioritized-lifo", "block scheduler: fifo, lifo, prioritized-lifo, load-driven")
	root.PersistentFlags().Bool("disable-symcut", false, "short-circuit splitHeapByCVars/joinHeapsByCVars to identity")

	root.AddCommand(newAnalyzeCmd(), newPlotCmd(), newStatsCmd(), newReplCmd())
	return root
}

func configFromFlags(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()

	jp, err := cmd.Flags().GetInt("join-policy")
	if err != nil {
		return cfg, err
	}
	cfg.JoinOnLoopEdgesOnly = config.JoinPolicy(jp)

	lo, err := cmd.Flags().GetInt("live-ordering")
	if err != nil {
		return cfg, err
	}
	cfg.StateLiveOrdering = config.LiveOrdering(lo)

	if cfg.ForbidHeapReplace, err = cmd.Flags().GetBool("forbid-heap-replace"); err != nil {
		return cfg, err
	}
	if cfg.AllowCyclicTraceGraph, err = cmd.Flags().GetBool("allow-cyclic-trace"); err != nil {
		return cfg, err
	}
	if cfg.LimitDepth, err = cmd.Flags().GetInt("limit-depth"); err != nil {
		return cfg, err
	}
	if cfg.DisableSymCut, err = cmd.Flags().GetBool("disable-symcut"); err != nil {
		return cfg, err
	}

	sched, err := cmd.Flags().GetString("sched")
	if err != nil {
		return cfg, err
	}
	switch sched {
	case "fifo":
		cfg.BlockSchedulerKind = config.SchedFIFO
	case "lifo":
		cfg.BlockSchedulerKind = config.SchedLIFO
	case "prioritized-lifo":
		cfg.BlockSchedulerKind = config.SchedPrioritizedLIFO
	case "load-driven":
		cfg.BlockSchedulerKind = config.SchedLoadDriven
	default:
		return cfg, fmt.Errorf("unknown --sched %q", sched)
	}
	return cfg, nil
}
