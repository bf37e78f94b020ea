package askdbctl

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/assistant"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/sample"
)

const seedLongDesc = `Load the bundled music-store dataset into a database.

The dataset holds artists, albums, genres, tracks, customers and invoices, so a
fresh database can answer questions like "Name 10 artists" right away. Steps
already applied are skipped. --reset drops the dataset tables instead.

Examples:
  askdb seed --driver duckdb --database ./chinook.duckdb
  askdb seed --host localhost --user postgres --database chinook`

type seedCommander struct {
	descriptor database.Descriptor
	reset      bool
}

func NewSeedCmd() *cobra.Command {
	cmder := &seedCommander{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the sample music-store dataset",
		Long:  seedLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromEnv("askdb")
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			descriptor := mergeDescriptor(assistant.DefaultDescriptor(cfg.Database), cmder.descriptor)
			return Seed(cmd.Context(), assistant.NewRegistry(cfg.Database), descriptor, cmder.reset, cmd.OutOrStdout())
		},
	}
	bindDescriptorFlags(cmd.Flags(), &cmder.descriptor)
	cmd.Flags().BoolVar(&cmder.reset, "reset", false, "Drop the dataset tables instead of loading them")
	return cmd
}

// Seed connects with connector and applies (or resets) the sample dataset.
func Seed(ctx context.Context, connector database.Connector, descriptor database.Descriptor, reset bool, stdout io.Writer) error {
	handle, err := connector.Connect(ctx, descriptor)
	if err != nil {
		return err
	}
	defer func() { _ = handle.Close() }()

	backed, ok := handle.(sample.SQLHandle)
	if !ok {
		return sample.ErrUnsupportedHandle
	}

	loader := sample.NewLoader()
	target := descriptor.Target()
	if reset {
		undone, err := loader.Reset(ctx, backed.DB())
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(stdout, "%s reset %d step(s) on %s\n", successMark, len(undone), target)
		return nil
	}

	ran, err := loader.Apply(ctx, backed.DB())
	if err != nil {
		return err
	}
	if len(ran) == 0 {
		_, _ = fmt.Fprintf(stdout, "%s %s already has the sample dataset\n", successMark, target)
		return nil
	}
	for _, name := range ran {
		_, _ = fmt.Fprintf(stdout, "%s applied %s\n", successMark, name)
	}
	return nil
}
