package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/star/debriswatch/internal/config"
	"github.com/star/debriswatch/internal/logging"
)

var (
	configPath string
	envFile    string

	cfg       config.Config
	logger    *slog.Logger
	logCloser io.Closer
)

// Execute runs the debriswatch command tree.
func Execute() error {
	root := &cobra.Command{
		Use:          "debriswatch",
		Short:        "Orbital debris forecasting and collision risk service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Configuration problems are reported before the configured
			// logger exists.
			boot := slog.New(slog.NewJSONHandler(os.Stderr, nil))

			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			var err error
			cfg, err = config.Load(configPath, boot)
			if err != nil {
				boot.Error("invalid configuration", "error", err)
				return err
			}

			logger, logCloser, err = logging.New(logging.Config{
				Level:      cfg.Log.Level,
				Format:     cfg.Log.Format,
				Output:     cfg.Log.Output,
				MaxSizeMB:  cfg.Log.MaxSizeMB,
				MaxBackups: cfg.Log.MaxBackups,
				MaxAgeDays: cfg.Log.MaxAgeDays,
				Compress:   cfg.Log.Compress,
			})
			if err != nil {
				boot.Error("invalid log configuration", "error", err)
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "YAML config file (optional)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	root.AddCommand(serveCmd(), checkCmd())

	err := root.Execute()
	if logCloser != nil {
		logCloser.Close()
	}
	return err
}
