package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"workspacemodel/internal/adapters/componentfiles"
	"workspacemodel/internal/blob"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Root string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write component states as XML files to the blob store",
		Long: `Write every stored component as a directory of XML files.

The configured blob store is used unless --root names a local directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Root, "root", "", "write to this local directory instead of the configured blob store")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	blobCfg := s.cfg.Blob
	if opts.Root != "" {
		blobCfg.Driver = string(blob.DriverFilesystem)
		blobCfg.FSRoot = opts.Root
	}
	store, err := blob.Open(ctx, blobCfg)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	w := componentfiles.NewWriter(store, s.types, componentfiles.WithLogger(s.logger))
	n, err := w.Export(ctx, s.backend.Current())
	if err != nil {
		return err
	}
	s.logger.Info("components exported", "count", n, "driver", store.Driver())

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return json.NewEncoder(out).Encode(map[string]any{"components": n, "driver": store.Driver()})
	}
	fmt.Fprintf(out, "exported %d components\n", n)
	return nil
}
