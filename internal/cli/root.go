// Package cli implements the workspacectl commands. Each command resolves
// the runtime configuration, opens the configured store and reads its
// current snapshot.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"workspacemodel/internal/config"
	"workspacemodel/internal/core"
	"workspacemodel/pkg/workspace"
)

// RootOptions holds global flags and the environment lookup shared by all
// commands.
type RootOptions struct {
	Format string // "json" | "text"
	Driver string
	Lookup func(string) (string, bool)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the workspacectl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Lookup: os.LookupEnv}

	cmd := &cobra.Command{
		Use:   "workspacectl",
		Short: "Inspect and export a stored workspace model",
		Long: `Inspect and export a stored workspace model.

Storage and blob settings come from WORKSPACE_CONFIG (a YAML file) and
WORKSPACE_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "storage driver override (memory|sqlite|postgres|badger)")

	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))

	return cmd
}

// session is an opened store plus everything a command needs to use it.
type session struct {
	cfg     config.Config
	backend core.Backend
	types   workspace.Types
	logger  *slog.Logger
}

func (s *session) Close() error { return s.backend.Close() }

func openSession(ctx context.Context, opts *RootOptions, stderr io.Writer) (*session, error) {
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg, err := config.LoadWith(lookup)
	if err != nil {
		return nil, err
	}
	if opts.Driver != "" {
		cfg.Storage.Driver = opts.Driver
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	registry, types := workspace.NewRegistry()
	backend, err := core.OpenPersistentStore(ctx, cfg.Storage, registry, core.NewDefaultRulesEngine(), logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	return &session{cfg: cfg, backend: backend, types: types, logger: logger}, nil
}
