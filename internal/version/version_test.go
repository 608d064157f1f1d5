package version

import "testing"

func TestString(t *testing.T) {
	Version, Commit, Date = "v1.0.0", "abc123", "2026-01-01"
	if got := String(); got != "credits v1.0.0 (abc123, built 2026-01-01)" {
		t.Errorf("unexpected version string %q", got)
	}
}
