package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/artpar/cardsync/internal/app"
	"github.com/artpar/cardsync/internal/config"
)

type sweepView struct {
	Evicted int     `json:"evicted" yaml:"evicted"`
	Hits    int64   `json:"hits" yaml:"hits"`
	Misses  int64   `json:"misses" yaml:"misses"`
	HitRate float64 `json:"hitRate" yaml:"hitRate"`
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Evict expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				n, err := a.Sweep(ctx)
				if err != nil {
					return fmt.Errorf("sweep incomplete after %d evictions: %w", n, err)
				}

				stats := a.CacheStats()
				v := sweepView{Evicted: n, Hits: stats.HitCount, Misses: stats.MissCount, HitRate: stats.HitRate}
				return render(cmd, opts.Output, v, func(out io.Writer) {
					fmt.Fprintf(out, "Evicted %d expired entries.\n", v.Evicted)
				})
			})
		},
	}
}

// NewConfigCommand creates the config command.
func NewConfigCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	var defaults bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config.yaml with the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.ConfigDir
			if dir == "" {
				dir = "~/.cardsync"
			}

			cfg := config.Default()
			if !defaults {
				loaded, err := loadConfig(opts)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			path, err := config.WriteFile(dir, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&defaults, "defaults", false, "Write the built-in defaults, ignoring existing settings")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			format := opts.Output
			if format == "text" {
				format = "yaml"
			}
			if err := checkOutput(format); err != nil {
				return err
			}
			return render(cmd, format, cfg.Document(), nil)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
