// Command rprofnav is an offline inspector over rprof multi-frame capture
// containers (a bare single-frame Save output is rejected for lacking the
// container magic). It is not a GUI, just a CLI that exercises the same
// Navigator a GUI would build on top of.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rudjigames/rprof"
	"github.com/rudjigames/rprof/codec"
	"github.com/rudjigames/rprof/platform"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error().Err(err).Msg("rprofnav: failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rprofnav",
		Short: "Inspect rprof capture files offline",
	}
	root.AddCommand(newListCmd(), newShowCmd())
	return root
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <container-file>",
		Short: "List frame durations in a multi-frame container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nav, err := openNavigator(args[0])
			if err != nil {
				return err
			}
			for i, ms := range nav.FrameTimes() {
				fmt.Fprintf(cmd.OutOrStdout(), "%4d  %8.3f ms\n", i, ms)
			}
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "show <container-file> <frame-index>",
		Short: "Show per-name aggregate statistics for one frame",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			nav, err := openNavigator(args[0])
			if err != nil {
				return err
			}
			var index int
			if _, err := fmt.Sscanf(args[1], "%d", &index); err != nil {
				return fmt.Errorf("rprofnav: invalid frame index %q: %w", args[1], err)
			}
			frame, err := nav.LoadFrame(index)
			if err != nil {
				return err
			}
			printAggregates(cmd, frame, top)
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of names to show, ranked by exclusive time")
	return cmd
}

func openNavigator(path string) (*codec.Navigator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rprofnav: read %s: %w", path, err)
	}
	nav, err := codec.OpenNavigator(data)
	if err != nil {
		return nil, fmt.Errorf("rprofnav: %s: %w", path, err)
	}
	logger.Debug().Str("file", path).Int("frames", nav.Len()).Msg("rprofnav: opened container")
	return nav, nil
}

func printAggregates(cmd *cobra.Command, frame *rprof.Frame, top int) {
	aggregates := append([]rprof.Scope(nil), frame.Aggregates...)
	sort.Slice(aggregates, func(i, j int) bool {
		return aggregates[i].Stats.ExclusiveTimeTotal > aggregates[j].Stats.ExclusiveTimeTotal
	})
	if top > 0 && len(aggregates) > top {
		aggregates = aggregates[:top]
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-32s %10s %12s %12s\n", "name", "count", "excl (ms)", "incl (ms)")
	for _, a := range aggregates {
		fmt.Fprintf(w, "%-32s %10d %12.3f %12.3f\n",
			a.Name, a.Stats.Occurrences,
			platform.Clock2Ms(a.Stats.ExclusiveTimeTotal, frame.CPUFrequency),
			platform.Clock2Ms(a.Stats.InclusiveTimeTotal, frame.CPUFrequency))
	}
}
