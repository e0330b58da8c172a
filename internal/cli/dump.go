package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print every stored entity",
		Long: `Print every entity of the current snapshot.

JSON output is the portable state document accepted by ImportState.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, rootOpts)
		},
	}
}

func runDump(cmd *cobra.Command, opts *RootOptions) error {
	s, err := openSession(cmd.Context(), opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	st := s.backend.ExportState()
	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	fmt.Fprintf(out, "version %d\n", st.Version)
	for _, e := range st.Entities {
		name := e.Text("name")
		if name == "" {
			fmt.Fprintln(out, e.ID())
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", e.ID(), name)
	}
	return nil
}
