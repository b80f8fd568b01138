package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/cardsync/internal/app"
)

type sessionView struct {
	Active         bool       `json:"active" yaml:"active"`
	Subject        string     `json:"subject,omitempty" yaml:"subject,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	RequiresReauth bool       `json:"requiresReauth" yaml:"requiresReauth"`
}

func currentSession(a *app.App) sessionView {
	s := a.CurrentSession()
	view := sessionView{
		Active:         s.Active(),
		Subject:        s.Subject,
		RequiresReauth: a.RequiresReauth(),
	}
	if !s.ExpiresAt.IsZero() {
		view.ExpiresAt = &s.ExpiresAt
	}
	return view
}

func printSession(out io.Writer, v sessionView) {
	if !v.Active {
		fmt.Fprintln(out, "Not signed in.")
		if v.RequiresReauth {
			fmt.Fprintln(out, "The last session expired; run login again.")
		}
		return
	}
	fmt.Fprint(out, "Signed in")
	if v.Subject != "" {
		fmt.Fprintf(out, " as %s", v.Subject)
	}
	if v.ExpiresAt != nil {
		fmt.Fprintf(out, " until %s", v.ExpiresAt.Local().Format(time.RFC3339))
	}
	fmt.Fprintln(out, ".")
}

// NewLoginCommand creates the login command.
func NewLoginCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login CODE",
		Short: "Sign in with a platform login code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				if _, err := a.Login(ctx, args[0]); err != nil {
					return fmt.Errorf("login failed: %w", err)
				}
				v := currentSession(a)
				return render(cmd, opts.Output, v, func(out io.Writer) { printSession(out, v) })
			})
		},
	}
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				a.Logout(ctx)
				v := currentSession(a)
				return render(cmd, opts.Output, v, func(out io.Writer) { printSession(out, v) })
			})
		},
	}
}

// NewSessionCommand creates the session command.
func NewSessionCommand(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app.App) error {
				v := currentSession(a)
				return render(cmd, opts.Output, v, func(out io.Writer) { printSession(out, v) })
			})
		},
	}
}
