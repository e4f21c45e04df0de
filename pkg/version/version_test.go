package version

import (
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Fatal("Version must be set")
	}
	if !strings.HasPrefix(Version, "v") {
		t.Errorf("Version %q should start with v", Version)
	}
}
