package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/playlake/pkg/config"
	"github.com/malbeclabs/playlake/pkg/duck"
	"github.com/malbeclabs/playlake/pkg/logger"
	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

func Run() ExitCode {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		return exitCodeError
	}
	return exitCodeSuccess
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "playlake-inspect",
		Short:         "Summarize the tables written by playlake-etl.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the TOML config file")

	var output string
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output root to inspect (defaults to paths.output from the config)")

	rootCmd.AddCommand(
		NewTablesCmd().Command(),
		NewQuarantineCmd().Command(),
	)

	return rootCmd
}

// session is what every subcommand needs: a logger, an engine able to read the output
// root, and the root itself.
type session struct {
	log    *slog.Logger
	engine *duck.Engine
	conn   duck.Connection
	output string
}

func (s *session) Close() {
	s.conn.Close()
	s.engine.Close()
}

func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	flags := cmd.Root().PersistentFlags()
	verbose, err := flags.GetBool("verbose")
	if err != nil {
		return nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	output, err := flags.GetString("output")
	if err != nil {
		return nil, fmt.Errorf("failed to get output flag: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if output != "" {
		cfg.Paths.Output = output
	}
	if err := duck.ValidateStorageURI(cfg.Paths.Output); err != nil {
		return nil, fmt.Errorf("invalid output path: %w", err)
	}

	log := logger.NewWithWriter(cmd.ErrOrStderr(), verbose || cfg.Run.Verbose)

	var s3cfg *duck.S3Config
	if duck.IsS3(cfg.Paths.Output) {
		s3cfg = cfg.S3()
	}
	engine, err := duck.NewEngine(ctx, duck.EngineConfig{Logger: log, S3: s3cfg})
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	conn, err := engine.Conn(ctx)
	if err != nil {
		engine.Close()
		return nil, err
	}
	return &session{log: log, engine: engine, conn: conn, output: cfg.Paths.Output}, nil
}
