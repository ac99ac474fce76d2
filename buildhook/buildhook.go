// Package buildhook patches an iOS app's Info.plist with the FeliCa system
// codes the app may poll for, taken from the NFC_SYSTEM_CODES preference.
package buildhook

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"howett.net/plist"
)

var logger = log.WithField("component", "buildhook")

const (
	// SystemCodesKey is the Info.plist key listing FeliCa system codes.
	SystemCodesKey = "com.apple.developer.nfc.readersession.felica.systemcodes"

	// SystemCodesPreference is the config.xml preference holding the codes
	// as a comma-separated list.
	SystemCodesPreference = "NFC_SYSTEM_CODES"

	platformIOS = "ios"
)

var (
	// ErrNoSystemCodes is returned when NFC_SYSTEM_CODES is missing or empty.
	ErrNoSystemCodes = errors.New("NFC_SYSTEM_CODES preference is not set")

	// ErrProjectNotFound is returned when platforms/ios holds no Xcode project.
	ErrProjectNotFound = errors.New("no Xcode project found under platforms/ios")
)

// Outcome describes what AddSystemCodes did.
type Outcome int

const (
	SkippedNoIOS Outcome = iota
	SkippedAlreadyDefined
	Unchanged
	Added
)

func (o Outcome) String() string {
	switch o {
	case SkippedNoIOS:
		return "skipped: no ios"
	case SkippedAlreadyDefined:
		return "skipped: already defined"
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Options locates the project being built.
type Options struct {
	ProjectRoot string
	Platforms   []string
}

// Project is a prepared iOS platform directory.
type Project struct {
	Name      string
	Dir       string // platforms/ios/<Name>
	ConfigXML string
	InfoPlist string
}

// FindProject locates platforms/ios/<Name>.xcodeproj under root.
func FindProject(root string) (*Project, error) {
	iosDir := filepath.Join(root, "platforms", platformIOS)
	matches, err := filepath.Glob(filepath.Join(iosDir, "*.xcodeproj"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrProjectNotFound
	}
	sort.Strings(matches)

	name := strings.TrimSuffix(filepath.Base(matches[0]), ".xcodeproj")
	dir := filepath.Join(iosDir, name)
	return &Project{
		Name:      name,
		Dir:       dir,
		ConfigXML: filepath.Join(dir, "config.xml"),
		InfoPlist: filepath.Join(dir, name+"-Info.plist"),
	}, nil
}

// AddSystemCodes writes the NFC_SYSTEM_CODES preference into the app's
// Info.plist unless ios is not being built or config.xml already sets the
// key. Running it twice leaves the plist untouched.
func AddSystemCodes(opts Options) (Outcome, error) {
	if !slices.Contains(opts.Platforms, platformIOS) {
		logger.Info("SKIPPED: addSystemCodes: no ios")
		return SkippedNoIOS, nil
	}

	project, err := FindProject(opts.ProjectRoot)
	if err != nil {
		return 0, err
	}

	cfg, err := readConfigXML(project.ConfigXML)
	if err != nil {
		return 0, err
	}
	if cfg.definesKey(platformIOS, SystemCodesKey) {
		logger.Info("SKIPPED: addSystemCodes: System Codes already defined.")
		return SkippedAlreadyDefined, nil
	}

	raw, _ := cfg.preference(SystemCodesPreference, platformIOS)
	codes := ParseSystemCodes(raw)
	if len(codes) == 0 {
		return 0, ErrNoSystemCodes
	}

	changed, err := writeSystemCodes(project.InfoPlist, codes)
	if err != nil {
		return 0, err
	}
	if !changed {
		logger.WithField("plist", project.InfoPlist).Debug("System Codes already up to date")
		return Unchanged, nil
	}
	logger.Info("addSystemCodes: added System Codes.")
	return Added, nil
}

// ParseSystemCodes splits a comma-separated preference value, trimming
// whitespace and dropping empty entries.
func ParseSystemCodes(value string) []string {
	var codes []string
	for _, part := range strings.Split(value, ",") {
		if code := strings.TrimSpace(part); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

var emptyString = regexp.MustCompile(`<string\s*/>|<string>\s*</string>`)

// writeSystemCodes sets the key in the plist at path and reports whether
// the file was rewritten.
func writeSystemCodes(path string, codes []string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read Info.plist: %w", err)
	}

	info := map[string]any{}
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}

	if current, ok := info[SystemCodesKey]; ok && reflect.DeepEqual(stringList(current), codes) {
		return false, nil
	}
	info[SystemCodesKey] = codes

	out, err := plist.MarshalIndent(info, plist.XMLFormat, "\t")
	if err != nil {
		return false, fmt.Errorf("encode Info.plist: %w", err)
	}
	out = xcodeFormat(out)

	if err := os.WriteFile(path, out, 0644); err != nil {
		return false, fmt.Errorf("write Info.plist: %w", err)
	}
	return true, nil
}

// xcodeFormat rewrites encoder output the way Xcode saves a plist: the
// root element starts at column 0 and empty strings use an explicit
// closing tag.
func xcodeFormat(out []byte) []byte {
	out = emptyString.ReplaceAll(out, []byte("<string></string>"))

	lines := bytes.Split(bytes.TrimRight(out, "\n"), []byte("\n"))
	inside := false
	for i, line := range lines {
		switch {
		case bytes.HasPrefix(line, []byte("<plist")):
			inside = true
		case bytes.HasPrefix(line, []byte("</plist>")):
			inside = false
		case inside:
			lines[i] = bytes.TrimPrefix(line, []byte("\t"))
		}
	}
	return append(bytes.Join(lines, []byte("\n")), '\n')
}

// stringList converts a decoded plist array to []string, or nil when it
// holds anything else.
func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil
		}
		out = append(out, s)
	}
	return out
}
