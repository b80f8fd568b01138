// Package harness provides E2E testing utilities for cardsync.
package harness

import (
	"os"
	"testing"
	"time"

	"github.com/artpar/cardsync/e2e/testserver"
)

// E2EHarness is the main test orchestrator. Every CLI run shares one data
// directory, so state persists between runs as it does between real
// invocations.
type E2EHarness struct {
	t       *testing.T
	server  *testserver.Server
	tmpDir  string
	timeout time.Duration
}

// Config configures the harness.
type Config struct {
	Cards   []testserver.Card
	Timeout time.Duration // Default: 5 seconds
}

// New creates a new E2E harness with a running card service.
func New(t *testing.T, cfg Config) *E2EHarness {
	t.Helper()

	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	h := &E2EHarness{
		t:       t,
		timeout: cfg.Timeout,
	}

	tmpDir, err := os.MkdirTemp("", "cardsync-e2e-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	h.tmpDir = tmpDir
	h.server = testserver.New(cfg.Cards...)

	t.Cleanup(h.cleanup)
	return h
}

func (h *E2EHarness) cleanup() {
	h.server.Close()
	os.RemoveAll(h.tmpDir)
}

// Server returns the card service.
func (h *E2EHarness) Server() *testserver.Server {
	return h.server
}

// ServerURL returns the card service URL.
func (h *E2EHarness) ServerURL() string {
	return h.server.URL
}

// TmpDir returns the temporary directory path.
func (h *E2EHarness) TmpDir() string {
	return h.tmpDir
}

// T returns the testing.T instance.
func (h *E2EHarness) T() *testing.T {
	return h.t
}

// CLI returns a CLI runner for this harness.
func (h *E2EHarness) CLI() *CLIRunner {
	return &CLIRunner{harness: h}
}
