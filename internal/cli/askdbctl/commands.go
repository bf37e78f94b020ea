package askdbctl

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/askdb/askdb/internal/assistant"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/database/duckdb"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/pipeline"
)

const chatLongDesc = `Start an interactive chat with a database.

Questions are translated to SQL by the configured language model, run against
the connected database, and answered in one sentence. Connection defaults come
from ASKDB_DB_* environment variables and can be overridden with flags.

With --api-url the chat runs against a remote askdb-api server instead of
in-process.

Examples:
  askdb chat --host localhost --user postgres --database chinook
  askdb chat --driver duckdb --database ./chinook.duckdb
  askdb chat --api-url http://localhost:8080 --api-key k1`

type chatCommander struct {
	descriptor database.Descriptor
	apiURL     string
	apiKey     string
	noConnect  bool
	showSQL    bool
	timeout    time.Duration
}

// NewRootCmd builds the askdb command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "askdb",
		Short:         "Ask questions about a SQL database in plain language",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(NewChatCmd(), NewStatusCmd(), NewSeedCmd())
	return root
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive natural-language chat with a database",
		Long:  chatLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	flags := cmd.Flags()
	bindDescriptorFlags(flags, &cmder.descriptor)
	flags.StringVar(&cmder.apiURL, "api-url", "", "Chat through a running askdb-api instead of in-process")
	flags.StringVar(&cmder.apiKey, "api-key", "", "API key for --api-url")
	flags.BoolVar(&cmder.noConnect, "no-connect", false, "Start without connecting; use /connect later")
	flags.BoolVar(&cmder.showSQL, "show-sql", false, "Print the generated SQL before each answer")
	flags.DurationVar(&cmder.timeout, "timeout", 2*time.Minute, "HTTP timeout for --api-url")
	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, err := config.LoadFromEnv("askdb")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	descriptor := mergeDescriptor(assistant.DefaultDescriptor(cfg.Database), c.descriptor)

	var backend Backend
	if c.apiURL != "" {
		remote, err := NewRemoteBackend(ctx, c.apiURL, c.apiKey, &http.Client{Timeout: c.timeout})
		if err != nil {
			return err
		}
		backend = remote
	} else {
		if err := cfg.RequireModelCredential(); err != nil {
			return err
		}
		// Logs go to stderr so they never interleave with answers.
		logger := observability.NewLogger(cfg, os.Stderr)
		p, err := assistant.NewPipeline(cfg.AI, logger)
		if err != nil {
			return err
		}
		backend = &LocalBackend{
			Session:   pipeline.NewSession(p, cfg.Session.Greeting, logger),
			Connector: assistant.NewRegistry(cfg.Database),
		}
	}
	defer func() { _ = backend.Close(ctx) }()

	return Chat(ctx, backend, ChatOptions{
		Descriptor:  descriptor,
		AutoConnect: !c.noConnect,
		ShowSQL:     c.showSQL,
		Stdin:       cmd.InOrStdin(),
		Stdout:      cmd.OutOrStdout(),
		Stderr:      cmd.ErrOrStderr(),
	})
}

func NewStatusCmd() *cobra.Command {
	var (
		apiURL  string
		apiKey  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check health and readiness of an askdb-api server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: timeout}
			if code := Status(cmd.Context(), client, apiURL, apiKey, cmd.OutOrStdout(), cmd.ErrOrStderr()); code != 0 {
				return fmt.Errorf("askdb-api at %s is not ready", apiURL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://localhost:8080", "askdb-api base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "HTTP timeout")
	return cmd
}

func bindDescriptorFlags(flags *pflag.FlagSet, descriptor *database.Descriptor) {
	flags.StringVar(&descriptor.Driver, "driver", "", "Database driver (postgres, duckdb)")
	flags.StringVar(&descriptor.Host, "host", "", "Database host")
	flags.IntVar(&descriptor.Port, "port", 0, "Database port")
	flags.StringVarP(&descriptor.User, "user", "u", "", "Database user")
	flags.StringVar(&descriptor.Password, "password", "", "Database password")
	flags.StringVarP(&descriptor.Name, "database", "d", "", "Database name, or file path for duckdb")
	flags.StringVar(&descriptor.SSLMode, "sslmode", "", "Postgres sslmode")
}

// mergeDescriptor lets non-zero flag values override the configured
// defaults field by field.
func mergeDescriptor(base, override database.Descriptor) database.Descriptor {
	if override.Driver != "" {
		base.Driver = override.Driver
	}
	if override.Host != "" {
		base.Host = override.Host
	}
	if override.Port != 0 {
		base.Port = override.Port
	}
	if override.User != "" {
		base.User = override.User
	}
	if override.Password != "" {
		base.Password = override.Password
	}
	if override.Name != "" {
		base.Name = override.Name
	}
	if override.SSLMode != "" {
		base.SSLMode = override.SSLMode
	}
	if strings.EqualFold(base.Driver, duckdb.DriverName) {
		// An embedded database has no server to address.
		base.Host, base.Port, base.User, base.Password, base.SSLMode = "", 0, "", "", ""
	}
	return base
}
