package buildinfo

import (
	"strings"
	"testing"
)

func TestFullVersion(t *testing.T) {
	origVersion, origCommit := Version, Commit
	defer func() { Version, Commit = origVersion, origCommit }()

	tests := []struct {
		version string
		commit  string
		want    string
	}{
		{"dev", "", "dev"},
		{"1.2.0", "", "1.2.0"},
		{"1.2.0", "abc1234", "1.2.0 (abc1234)"},
	}

	for _, tt := range tests {
		Version, Commit = tt.version, tt.commit
		if got := FullVersion(); got != tt.want {
			t.Errorf("FullVersion() with %q/%q = %q, want %q", tt.version, tt.commit, got, tt.want)
		}
	}
}

func TestUserAgentAndInfo(t *testing.T) {
	origVersion := Version
	defer func() { Version = origVersion }()

	Version = "0.3.1"
	if got := UserAgent(); got != "nfc-reader-bridge/0.3.1" {
		t.Errorf("UserAgent() = %q", got)
	}
	if IsDev() {
		t.Error("IsDev() = true for a release version")
	}
	if !strings.HasPrefix(BuildInfo(), "nfc-reader-bridge 0.3.1\n") {
		t.Errorf("BuildInfo() has unexpected header: %q", BuildInfo())
	}
}
