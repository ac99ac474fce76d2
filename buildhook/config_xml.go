package buildhook

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

// configXML is the subset of a Cordova config.xml the hook inspects.
type configXML struct {
	XMLName     xml.Name         `xml:"widget"`
	Preferences []xmlPreference  `xml:"preference"`
	EditConfigs []xmlEditConfig  `xml:"edit-config"`
	ConfigFiles []xmlConfigFile  `xml:"config-file"`
	Platforms   []xmlPlatformTag `xml:"platform"`
}

type xmlPlatformTag struct {
	Name        string          `xml:"name,attr"`
	Preferences []xmlPreference `xml:"preference"`
	EditConfigs []xmlEditConfig `xml:"edit-config"`
	ConfigFiles []xmlConfigFile `xml:"config-file"`
}

type xmlPreference struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlEditConfig struct {
	File   string `xml:"file,attr"`
	Target string `xml:"target,attr"`
	Mode   string `xml:"mode,attr"`
}

type xmlConfigFile struct {
	Target string `xml:"target,attr"`
	Parent string `xml:"parent,attr"`
}

func readConfigXML(path string) (*configXML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config.xml: %w", err)
	}
	var cfg configXML
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *configXML) platform(name string) *xmlPlatformTag {
	for i := range c.Platforms {
		if c.Platforms[i].Name == name {
			return &c.Platforms[i]
		}
	}
	return nil
}

// editConfigs returns the top-level edit-config tags followed by those of
// the platform.
func (c *configXML) editConfigs(platform string) []xmlEditConfig {
	out := append([]xmlEditConfig(nil), c.EditConfigs...)
	if p := c.platform(platform); p != nil {
		out = append(out, p.EditConfigs...)
	}
	return out
}

func (c *configXML) configFiles(platform string) []xmlConfigFile {
	out := append([]xmlConfigFile(nil), c.ConfigFiles...)
	if p := c.platform(platform); p != nil {
		out = append(out, p.ConfigFiles...)
	}
	return out
}

// preference returns the named preference. A platform preference overrides
// a global one; names compare case-insensitively.
func (c *configXML) preference(name, platform string) (string, bool) {
	if p := c.platform(platform); p != nil {
		if v, ok := findPreference(p.Preferences, name); ok {
			return v, true
		}
	}
	return findPreference(c.Preferences, name)
}

func findPreference(prefs []xmlPreference, name string) (string, bool) {
	value, found := "", false
	for _, p := range prefs {
		if strings.EqualFold(p.Name, name) {
			value, found = p.Value, true
		}
	}
	return value, found
}

// definesKey reports whether config.xml already writes the plist key.
func (c *configXML) definesKey(platform, key string) bool {
	for _, ec := range c.editConfigs(platform) {
		if ec.Target == key {
			return true
		}
	}
	for _, cf := range c.configFiles(platform) {
		if cf.Parent == key {
			return true
		}
	}
	return false
}
