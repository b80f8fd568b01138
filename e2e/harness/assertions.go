package harness

import (
	"strings"
	"testing"
)

// Assertions provides E2E-specific assertions.
type Assertions struct {
	t *testing.T
}

// NewAssertions creates an assertions helper.
func NewAssertions(t *testing.T) *Assertions {
	return &Assertions{t: t}
}

// OutputContains asserts the output contains all given strings.
func (a *Assertions) OutputContains(output string, expected ...string) {
	a.t.Helper()
	for _, exp := range expected {
		if !strings.Contains(output, exp) {
			a.t.Errorf("expected output to contain %q, got:\n%s", exp, truncate(output, 500))
		}
	}
}

// OutputNotContains asserts the output does not contain any of the given strings.
func (a *Assertions) OutputNotContains(output string, unexpected ...string) {
	a.t.Helper()
	for _, unexp := range unexpected {
		if strings.Contains(output, unexp) {
			a.t.Errorf("expected output NOT to contain %q, got:\n%s", unexp, truncate(output, 500))
		}
	}
}

// NoError asserts the output doesn't contain error indicators.
func (a *Assertions) NoError(output string) {
	a.t.Helper()
	errorIndicators := []string{"Error:", "error:", "panic:", "PANIC:"}
	for _, ind := range errorIndicators {
		if strings.Contains(output, ind) {
			a.t.Errorf("unexpected error in output: found %q in:\n%s", ind, truncate(output, 500))
			return
		}
	}
}

// FavoriteIDs asserts the listed favorites have exactly the given ids, in order.
func (a *Assertions) FavoriteIDs(result *CLIResult, ids ...string) {
	a.t.Helper()
	var records []struct {
		Entity struct {
			ID string `json:"id"`
		} `json:"entity"`
	}
	if err := result.JSON(&records); err != nil {
		a.t.Errorf("favorites output is not JSON: %v\n%s", err, truncate(result.Stdout, 500))
		return
	}
	got := make([]string, len(records))
	for i, r := range records {
		got[i] = r.Entity.ID
	}
	if strings.Join(got, ",") != strings.Join(ids, ",") {
		a.t.Errorf("expected favorites %v, got %v", ids, got)
	}
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
