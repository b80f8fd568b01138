package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/artpar/cardsync/internal/app"
	"github.com/artpar/cardsync/internal/coordinator"
	"github.com/artpar/cardsync/internal/core"
	"github.com/artpar/cardsync/internal/ledger"
)

// NewDailyCommand creates the daily command.
func NewDailyCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daily",
		Short: "Show today's card",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaily(cmd, opts)
		},
	}
}

func runDaily(cmd *cobra.Command, opts *GlobalOptions) error {
	return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
		e := a.DailyEntity(ctx)
		return render(cmd, opts.Output, e, func(out io.Writer) { printEntity(out, e) })
	})
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Generate a new card",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				e := a.RefreshDailyEntity(ctx)
				return render(cmd, opts.Output, e, func(out io.Writer) { printEntity(out, e) })
			})
		},
	}
}

// NewShowCommand creates the show command.
func NewShowCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a card by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				e, err := a.LoadEntity(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to load card %s: %w", args[0], err)
				}
				return render(cmd, opts.Output, e, func(out io.Writer) { printEntity(out, e) })
			})
		},
	}
}

// NewFaveCommand creates the fave command.
func NewFaveCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fave ID",
		Short: "Toggle a card's favorite flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToggle(cmd, opts, args[0], coordinator.OpFavorite)
		},
	}
}

// NewLikeCommand creates the like command.
func NewLikeCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "like ID",
		Short: "Toggle a card's like flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToggle(cmd, opts, args[0], coordinator.OpLike)
		},
	}
}

type mutationView struct {
	ID     string      `json:"id" yaml:"id"`
	Op     string      `json:"op" yaml:"op"`
	State  string      `json:"state" yaml:"state"`
	Local  bool        `json:"local,omitempty" yaml:"local,omitempty"`
	Error  string      `json:"error,omitempty" yaml:"error,omitempty"`
	Entity core.Entity `json:"entity" yaml:"entity"`
}

func runToggle(cmd *cobra.Command, opts *GlobalOptions, id string, op coordinator.Op) error {
	return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
		if _, err := a.LoadEntity(ctx, id); err != nil {
			return fmt.Errorf("failed to load card %s: %w", id, err)
		}

		var (
			m   *coordinator.Mutation
			err error
		)
		if op == coordinator.OpLike {
			m, err = a.ToggleLike(ctx, id)
		} else {
			m, err = a.ToggleFavorite(ctx, id)
		}
		if err != nil {
			return err
		}

		o, err := m.Wait(ctx)
		if err != nil {
			return err
		}

		view := mutationView{
			ID:     o.ID,
			Op:     string(o.Op),
			State:  o.State.String(),
			Local:  o.Local,
			Entity: o.Entity,
		}
		if o.Err != nil {
			view.Error = o.Err.Error()
		}

		if err := render(cmd, opts.Output, view, func(out io.Writer) {
			fmt.Fprintf(out, "%s %s: %s", view.Op, view.ID, view.State)
			if view.Local {
				fmt.Fprint(out, " (local)")
			}
			fmt.Fprintln(out)
			printEntity(out, view.Entity)
		}); err != nil {
			return err
		}

		if o.State == coordinator.RolledBack {
			return fmt.Errorf("%s %s failed: %w", op, id, o.Err)
		}
		return nil
	})
}

// FavoritesOptions holds options for the favorites command.
type FavoritesOptions struct {
	Kind    string
	Query   string
	Reverse bool
	Sync    bool
}

// NewFavoritesCommand creates the favorites command.
func NewFavoritesCommand(opts *GlobalOptions) *cobra.Command {
	favOpts := &FavoritesOptions{}

	cmd := &cobra.Command{
		Use:     "favorites",
		Aliases: []string{"favs"},
		Short:   "List favorited cards",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFavorites(cmd, opts, favOpts)
		},
	}

	cmd.Flags().StringVarP(&favOpts.Kind, "kind", "k", "", "Only cards of this kind")
	cmd.Flags().StringVarP(&favOpts.Query, "query", "q", "", "Only cards whose content or author contains this text")
	cmd.Flags().BoolVarP(&favOpts.Reverse, "reverse", "r", false, "Most recently favorited first")
	cmd.Flags().BoolVar(&favOpts.Sync, "sync", false, "Replace local favorites with the server's list first")

	return cmd
}

func runFavorites(cmd *cobra.Command, opts *GlobalOptions, favOpts *FavoritesOptions) error {
	if favOpts.Kind != "" {
		if _, ok := core.KindNames[core.Kind(favOpts.Kind)]; !ok {
			return fmt.Errorf("unknown kind %q", favOpts.Kind)
		}
	}

	return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
		if favOpts.Sync {
			if _, err := a.SyncFavorites(ctx); err != nil {
				return fmt.Errorf("failed to sync favorites: %w", err)
			}
		}

		records := a.ListFavorites(ledger.Filter{
			Kind:    core.Kind(favOpts.Kind),
			Query:   favOpts.Query,
			Reverse: favOpts.Reverse,
		})

		return render(cmd, opts.Output, records, func(out io.Writer) {
			if len(records) == 0 {
				fmt.Fprintln(out, "No favorites.")
				return
			}
			for i, r := range records {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printEntity(out, r.Entity)
				fmt.Fprintf(out, "favorited %s\n", r.FavoritedAt.Local().Format("2006-01-02 15:04"))
			}
		})
	})
}

// HistoryOptions holds options for the history command.
type HistoryOptions struct {
	Page int
	Kind string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(opts *GlobalOptions) *cobra.Command {
	histOpts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previously generated cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts, histOpts)
		},
	}

	cmd.Flags().IntVarP(&histOpts.Page, "page", "p", 1, "Page number")
	cmd.Flags().StringVarP(&histOpts.Kind, "kind", "k", "", "Only cards of this kind")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *GlobalOptions, histOpts *HistoryOptions) error {
	if histOpts.Kind != "" {
		if _, ok := core.KindNames[core.Kind(histOpts.Kind)]; !ok {
			return fmt.Errorf("unknown kind %q", histOpts.Kind)
		}
	}

	return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
		cards, err := a.History(ctx, histOpts.Page, core.Kind(histOpts.Kind))
		if err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}

		return render(cmd, opts.Output, cards, func(out io.Writer) {
			if len(cards) == 0 {
				fmt.Fprintln(out, "No cards.")
				return
			}
			for i, e := range cards {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printEntity(out, e)
			}
		})
	})
}
