// Package buildinfo carries the bridge's name and version. Release builds
// stamp Version, Commit and BuildTime with ldflags:
//
//	go build -ldflags "\
//	  -X github.com/nedpals/nfc-reader-bridge/buildinfo.Version=1.0.0 \
//	  -X github.com/nedpals/nfc-reader-bridge/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/nedpals/nfc-reader-bridge/buildinfo.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import (
	"fmt"
	"runtime"
	"strings"
)

var (
	// Name is the binary name; also the User-Agent product token.
	Name = "nfc-reader-bridge"

	// DirName is the per-user config directory holding the local CA.
	DirName = "nfc-reader-bridge"

	// DisplayName appears in the tray menu and the mDNS instance name.
	DisplayName = "NFC Reader Bridge"

	Description = "FeliCa and MIFARE reader bridge for scripted applications"

	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// FullVersion is Version, followed by the commit in parentheses when known:
// "1.0.0 (abc1234)".
func FullVersion() string {
	if Commit == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit)
}

// UserAgent identifies bridge clients, e.g. "nfc-reader-bridge/1.0.0".
func UserAgent() string {
	return Name + "/" + Version
}

// BuildInfo renders the multi-line output of the version command.
func BuildInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", Name, FullVersion())
	fmt.Fprintf(&b, "  %s\n", Description)
	fmt.Fprintf(&b, "  Go: %s\n", runtime.Version())
	fmt.Fprintf(&b, "  OS/Arch: %s/%s", runtime.GOOS, runtime.GOARCH)
	if BuildTime != "" {
		fmt.Fprintf(&b, "\n  Built: %s", BuildTime)
	}
	return b.String()
}

func IsDev() bool {
	return Version == "dev"
}
