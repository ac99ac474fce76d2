package buildhook

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"howett.net/plist"
)

const basePlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleDisplayName</key>
	<string>Transit Reader</string>
	<key>CFBundleIdentifier</key>
	<string>com.example.transit</string>
	<key>NSPrivacyNote</key>
	<string></string>
</dict>
</plist>
`

func writeProject(t *testing.T, name, configXML string) (string, *Project) {
	t.Helper()
	root := t.TempDir()
	ios := filepath.Join(root, "platforms", "ios")
	if err := os.MkdirAll(filepath.Join(ios, name+".xcodeproj"), 0755); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(ios, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.xml"), []byte(configXML), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+"-Info.plist"), []byte(basePlist), 0644); err != nil {
		t.Fatal(err)
	}
	project, err := FindProject(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, project
}

func readCodes(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	info := map[string]any{}
	if _, err := plist.Unmarshal(data, &info); err != nil {
		t.Fatalf("plist no longer parses: %v", err)
	}
	if info["CFBundleIdentifier"] != "com.example.transit" {
		t.Error("existing keys were not preserved")
	}
	return stringList(info[SystemCodesKey])
}

func widget(body string) string {
	return `<?xml version='1.0' encoding='utf-8'?>
<widget id="com.example.transit" version="1.0.0" xmlns="http://www.w3.org/ns/widgets">
` + body + `
</widget>`
}

func TestAddSystemCodes(t *testing.T) {
	root, project := writeProject(t, "Transit", widget(`
	<preference name="NFC_SYSTEM_CODES" value="0003, FE00 ,88B4" />`))

	outcome, err := AddSystemCodes(Options{ProjectRoot: root, Platforms: []string{"android", "ios"}})
	if err != nil {
		t.Fatalf("AddSystemCodes failed: %v", err)
	}
	if outcome != Added {
		t.Errorf("outcome = %v, want added", outcome)
	}

	if got := readCodes(t, project.InfoPlist); !reflect.DeepEqual(got, []string{"0003", "FE00", "88B4"}) {
		t.Errorf("codes = %v", got)
	}

	data, _ := os.ReadFile(project.InfoPlist)
	if !strings.Contains(string(data), "\t<key>"+SystemCodesKey+"</key>") {
		t.Errorf("plist not tab indented:\n%s", data)
	}
	if !strings.Contains(string(data), "<string></string>") || strings.Contains(string(data), "<string/>") {
		t.Errorf("empty string not collapsed:\n%s", data)
	}
	if !strings.Contains(string(data), "\n<dict>") || strings.Contains(string(data), "\n\t<dict>") {
		t.Errorf("root dict not at column 0:\n%s", data)
	}
	if !strings.HasSuffix(string(data), "</dict>\n</plist>\n") {
		t.Errorf("unexpected plist trailer:\n%s", data)
	}
}

func TestXcodeFormat(t *testing.T) {
	in := "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n" +
		"<plist version=\"1.0\">\n" +
		"\t<dict>\n" +
		"\t\t<key>Empty</key>\n" +
		"\t\t<string/>\n" +
		"\t\t<key>Codes</key>\n" +
		"\t\t<array>\n" +
		"\t\t\t<string>0003</string>\n" +
		"\t\t</array>\n" +
		"\t</dict>\n" +
		"</plist>"
	want := "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n" +
		"<plist version=\"1.0\">\n" +
		"<dict>\n" +
		"\t<key>Empty</key>\n" +
		"\t<string></string>\n" +
		"\t<key>Codes</key>\n" +
		"\t<array>\n" +
		"\t\t<string>0003</string>\n" +
		"\t</array>\n" +
		"</dict>\n" +
		"</plist>\n"
	if got := string(xcodeFormat([]byte(in))); got != want {
		t.Errorf("xcodeFormat() =\n%s\nwant\n%s", got, want)
	}
}

func TestAddSystemCodes_Idempotent(t *testing.T) {
	root, project := writeProject(t, "Transit", widget(`<preference name="NFC_SYSTEM_CODES" value="0003" />`))
	opts := Options{ProjectRoot: root, Platforms: []string{"ios"}}

	if _, err := AddSystemCodes(opts); err != nil {
		t.Fatal(err)
	}
	first, _ := os.ReadFile(project.InfoPlist)

	outcome, err := AddSystemCodes(opts)
	if err != nil {
		t.Fatal(err)
	}
	if outcome != Unchanged {
		t.Errorf("second outcome = %v, want unchanged", outcome)
	}
	second, _ := os.ReadFile(project.InfoPlist)
	if string(first) != string(second) {
		t.Error("second run changed the plist")
	}
}

func TestAddSystemCodes_PlatformPreferenceWins(t *testing.T) {
	root, project := writeProject(t, "Transit", widget(`
	<preference name="NFC_SYSTEM_CODES" value="0003" />
	<platform name="ios">
		<preference name="nfc_system_codes" value="FE00" />
	</platform>`))

	if _, err := AddSystemCodes(Options{ProjectRoot: root, Platforms: []string{"ios"}}); err != nil {
		t.Fatal(err)
	}
	if got := readCodes(t, project.InfoPlist); !reflect.DeepEqual(got, []string{"FE00"}) {
		t.Errorf("codes = %v, want [FE00]", got)
	}
}

func TestAddSystemCodes_Skips(t *testing.T) {
	tests := []struct {
		name      string
		config    string
		platforms []string
		want      Outcome
	}{
		{
			name:      "no ios platform",
			config:    widget(`<preference name="NFC_SYSTEM_CODES" value="0003" />`),
			platforms: []string{"android"},
			want:      SkippedNoIOS,
		},
		{
			name: "edit-config in ios platform",
			config: widget(`
	<preference name="NFC_SYSTEM_CODES" value="0003" />
	<platform name="ios">
		<edit-config file="*-Info.plist" mode="overwrite" target="` + SystemCodesKey + `">
			<array><string>FE00</string></array>
		</edit-config>
	</platform>`),
			platforms: []string{"ios"},
			want:      SkippedAlreadyDefined,
		},
		{
			name: "top-level config-file",
			config: widget(`
	<preference name="NFC_SYSTEM_CODES" value="0003" />
	<config-file parent="` + SystemCodesKey + `" target="*-Info.plist">
		<array><string>FE00</string></array>
	</config-file>`),
			platforms: []string{"ios"},
			want:      SkippedAlreadyDefined,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, project := writeProject(t, "Transit", tt.config)
			outcome, err := AddSystemCodes(Options{ProjectRoot: root, Platforms: tt.platforms})
			if err != nil {
				t.Fatalf("AddSystemCodes failed: %v", err)
			}
			if outcome != tt.want {
				t.Errorf("outcome = %v, want %v", outcome, tt.want)
			}
			data, _ := os.ReadFile(project.InfoPlist)
			if string(data) != basePlist {
				t.Error("plist modified on skip")
			}
		})
	}
}

func TestAddSystemCodes_Errors(t *testing.T) {
	t.Run("missing preference", func(t *testing.T) {
		root, _ := writeProject(t, "Transit", widget(`<preference name="Orientation" value="portrait" />`))
		_, err := AddSystemCodes(Options{ProjectRoot: root, Platforms: []string{"ios"}})
		if !errors.Is(err, ErrNoSystemCodes) {
			t.Errorf("error = %v, want ErrNoSystemCodes", err)
		}
	})

	t.Run("no xcode project", func(t *testing.T) {
		_, err := AddSystemCodes(Options{ProjectRoot: t.TempDir(), Platforms: []string{"ios"}})
		if !errors.Is(err, ErrProjectNotFound) {
			t.Errorf("error = %v, want ErrProjectNotFound", err)
		}
	})

	t.Run("malformed config.xml", func(t *testing.T) {
		root, _ := writeProject(t, "Transit", "<widget><preference")
		if _, err := AddSystemCodes(Options{ProjectRoot: root, Platforms: []string{"ios"}}); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestFindProject(t *testing.T) {
	root, project := writeProject(t, "HelloCordova", widget(""))

	wantDir := filepath.Join(root, "platforms", "ios", "HelloCordova")
	if project.Name != "HelloCordova" || project.Dir != wantDir {
		t.Errorf("project = %+v", project)
	}
	if project.InfoPlist != filepath.Join(wantDir, "HelloCordova-Info.plist") {
		t.Errorf("InfoPlist = %s", project.InfoPlist)
	}
}

func TestParseSystemCodes(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"0003", []string{"0003"}},
		{"0003,FE00", []string{"0003", "FE00"}},
		{" 0003 , , FE00 ", []string{"0003", "FE00"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := ParseSystemCodes(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseSystemCodes(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
