package version_test

import (
	"testing"

	"navi/internal/version"
)

func TestStringNeverEmpty(t *testing.T) {
	t.Parallel()

	if got := version.String(); got == "" {
		t.Fatalf("String() = %q, want the dev fallback at minimum", got)
	}
}
