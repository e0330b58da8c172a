package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// TypeCount is the number of stored entities of one type.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Stats summarises the current snapshot.
type Stats struct {
	Version  uint64      `json:"version"`
	Lineage  string      `json:"lineage"`
	Entities int         `json:"entities"`
	Types    []TypeCount `json:"types"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print entity counts per type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, rootOpts)
		},
	}
}

func runStats(cmd *cobra.Command, opts *RootOptions) error {
	s, err := openSession(cmd.Context(), opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	snap := s.backend.Current()
	stats := Stats{Version: snap.Version(), Lineage: snap.Lineage().String(), Entities: snap.Len()}
	for _, t := range snap.Types() {
		n := 0
		for range snap.EntitiesOfType(t) {
			n++
		}
		stats.Types = append(stats.Types, TypeCount{Type: t.Name, Count: n})
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return json.NewEncoder(out).Encode(stats)
	}
	fmt.Fprintf(out, "version %d (%s), %d entities\n", stats.Version, stats.Lineage, stats.Entities)
	for _, tc := range stats.Types {
		fmt.Fprintf(out, "  %-24s %d\n", tc.Type, tc.Count)
	}
	return nil
}
