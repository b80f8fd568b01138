package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/cardsync/internal/app"
	"github.com/artpar/cardsync/internal/config"
	"github.com/artpar/cardsync/internal/logger"
)

// GlobalOptions holds flags shared by every command.
type GlobalOptions struct {
	ConfigDir string
	BaseURL   string
	DataDir   string
	LogLevel  string
	Output    string
}

// NewRootCommand creates the root command.
func NewRootCommand(version string) *cobra.Command {
	opts := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:           "cardsync",
		Short:         "cardsync - daily inspiration cards with offline favorites",
		Long:          "cardsync fetches the daily card and keeps favorites and likes in sync with the card service.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaily(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigDir, "config", "c", "", "Directory containing config.yaml (default ~/.cardsync)")
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", "", "Card service base URL")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "Directory for the local database")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text, json, yaml)")

	cmd.AddCommand(NewDailyCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewFaveCommand(opts))
	cmd.AddCommand(NewLikeCommand(opts))
	cmd.AddCommand(NewFavoritesCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewSessionCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig(opts *GlobalOptions) (config.Config, error) {
	paths := []string{"~/.cardsync", "."}
	if opts.ConfigDir != "" {
		paths = []string{opts.ConfigDir}
	}

	cfg, err := config.Load(paths...)
	if err != nil {
		return config.Config{}, err
	}

	if opts.BaseURL != "" {
		cfg.Remote.BaseURL = opts.BaseURL
	}
	if opts.DataDir != "" {
		cfg.Storage.DataDir = opts.DataDir
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	return cfg, cfg.Validate()
}

// openApp loads the configuration, initializes logging and opens the App.
// The caller must Close it.
func openApp(ctx context.Context, opts *GlobalOptions) (*app.App, error) {
	if err := checkOutput(opts.Output); err != nil {
		return nil, err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return app.New(ctx, cfg)
}

// withApp runs fn against an open App and closes it afterwards.
func withApp(cmd *cobra.Command, opts *GlobalOptions, fn func(ctx context.Context, a *app.App) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	return fn(ctx, a)
}
