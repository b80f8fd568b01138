package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/artpar/cardsync/internal/cli"
)

// CLIResult holds CLI execution results.
type CLIResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// JSON decodes Stdout into out.
func (r *CLIResult) JSON(out any) error {
	return json.Unmarshal([]byte(r.Stdout), out)
}

// CLIRunner executes CLI commands.
type CLIRunner struct {
	harness *E2EHarness
}

// Run executes a CLI command with the given arguments against the harness
// card service and data directory.
func (r *CLIRunner) Run(args ...string) (*CLIResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.harness.timeout)
	defer cancel()

	start := time.Now()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	cmd := cli.NewRootCommand("test")
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{
		"--config", filepath.Join(r.harness.tmpDir, "config"),
		"--data-dir", filepath.Join(r.harness.tmpDir, "data"),
		"--base-url", r.harness.ServerURL(),
		"--log-level", "error",
	}, args...))

	err := cmd.ExecuteContext(ctx)

	result := &CLIResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		result.ExitCode = 1
	}

	return result, err
}

// Daily shows today's card.
func (r *CLIRunner) Daily(opts ...string) (*CLIResult, error) {
	return r.Run(append([]string{"daily"}, opts...)...)
}

// Login signs in with code.
func (r *CLIRunner) Login(code string) (*CLIResult, error) {
	return r.Run("login", code)
}

// Fave toggles the favorite flag of id with JSON output.
func (r *CLIRunner) Fave(id string) (*CLIResult, error) {
	return r.Run("fave", id, "-o", "json")
}

// Like toggles the like flag of id with JSON output.
func (r *CLIRunner) Like(id string) (*CLIResult, error) {
	return r.Run("like", id, "-o", "json")
}

// Favorites lists favorites with JSON output.
func (r *CLIRunner) Favorites(opts ...string) (*CLIResult, error) {
	return r.Run(append([]string{"favorites", "-o", "json"}, opts...)...)
}

// History lists previously generated cards.
func (r *CLIRunner) History(opts ...string) (*CLIResult, error) {
	return r.Run(append([]string{"history"}, opts...)...)
}
