// Command autodist runs the task distribution engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/autodist/internal/config"
	"github.com/okian/autodist/pkg/logger"
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:          "autodist",
		Short:        "Automatic task distribution engine",
		SilenceUsage: true,
		Long: `autodist turns business events into tasks and assigns them to the
best available worker, asking a manager when it is not confident enough.`,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"YAML config file (default $"+config.PathEnv+")")

	load := func(cmd *cobra.Command) (*config.Config, string, error) {
		path := cfgPath
		if path == "" {
			path = os.Getenv(config.PathEnv)
		}
		cfg, err := config.LoadFile(cmd.Context(), path)
		if err != nil {
			return nil, "", err
		}
		if err := initLogging(cfg); err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API and the event pipeline",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, path, err := load(cmd)
				if err != nil {
					return err
				}
				return serve(cmd.Context(), cfg, path)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := load(cmd)
				if err != nil {
					return err
				}
				return migrate(cmd.Context(), cfg)
			},
		},
	)
	return root
}

// initLogging applies the configured format and level.
func initLogging(cfg *config.Config) error {
	if err := logger.Init(logger.Format(cfg.LogFormat)); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(context.Background(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}
