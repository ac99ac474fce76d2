package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

var bridgeVars = []string{
	"HOST", "PORT", "DEVICE", "API_SECRET", "ALLOWED_ORIGINS", "SESSION_TIMEOUT",
	"POLL_INTERVAL", "ENABLE_MDNS", "ENABLE_TLS", "CONFIG_DIR", "LOG_LEVEL",
	"LOG_FORMAT", "RATE_LIMIT",
}

// clearEnv unsets every bridge variable for the test and restores them after.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range bridgeVars {
		t.Setenv(EnvPrefix+name, "")
		os.Unsetenv(EnvPrefix + name)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"CONFIG_DIR", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 18080 {
		t.Errorf("Port = %d, want 18080", cfg.Port)
	}
	if cfg.SessionTimeout != 60*time.Second {
		t.Errorf("SessionTimeout = %s, want 60s", cfg.SessionTimeout)
	}
	if cfg.PollInterval != 150*time.Millisecond {
		t.Errorf("PollInterval = %s, want 150ms", cfg.PollInterval)
	}
	if !cfg.EnableMDNS || cfg.EnableTLS {
		t.Errorf("EnableMDNS = %v, EnableTLS = %v", cfg.EnableMDNS, cfg.EnableTLS)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" || cfg.RateLimit != 60 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"PORT", "9000")
	t.Setenv(EnvPrefix+"DEVICE", "pn532_uart:/dev/ttyUSB0")
	t.Setenv(EnvPrefix+"ALLOWED_ORIGINS", "http://localhost:3000,https://app.example.com")
	t.Setenv(EnvPrefix+"SESSION_TIMEOUT", "20s")
	t.Setenv(EnvPrefix+"ENABLE_MDNS", "false")
	t.Setenv(EnvPrefix+"CONFIG_DIR", "/tmp/bridge")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9000 || cfg.Device != "pn532_uart:/dev/ttyUSB0" {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://app.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.SessionTimeout != 20*time.Second || cfg.EnableMDNS {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ConfigDir != "/tmp/bridge" {
		t.Errorf("ConfigDir = %q", cfg.ConfigDir)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"PORT", "7000")

	path := filepath.Join(t.TempDir(), ".env")
	data := "NFC_BRIDGE_PORT=8000\nNFC_BRIDGE_API_SECRET=from-file\nNFC_BRIDGE_CONFIG_DIR=/tmp/bridge\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APISecret != "from-file" {
		t.Errorf("APISecret = %q, want from-file", cfg.APISecret)
	}
	if cfg.Port != 7000 {
		t.Errorf("Port = %d, environment should win over .env", cfg.Port)
	}
}

func TestLoad_MissingEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrefix+"CONFIG_DIR", t.TempDir())

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		value  string
		prefix string
	}{
		{"bad port", "PORT", "abc", "parse env:"},
		{"bad duration", "SESSION_TIMEOUT", "soon", "parse env:"},
		{"port out of range", "PORT", "70000", "invalid port"},
		{"zero timeout", "SESSION_TIMEOUT", "0s", "session timeout"},
		{"bad log format", "LOG_FORMAT", "xml", "unknown log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(EnvPrefix+"CONFIG_DIR", t.TempDir())
			t.Setenv(EnvPrefix+tt.key, tt.value)

			_, err := Load("")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.HasPrefix(err.Error(), tt.prefix) {
				t.Errorf("error = %q, want prefix %q", err, tt.prefix)
			}
		})
	}
}

func TestSetupLogging(t *testing.T) {
	defer log.SetLevel(log.GetLevel())
	defer log.SetFormatter(log.StandardLogger().Formatter)

	if err := SetupLogging("debug", "json"); err != nil {
		t.Fatalf("SetupLogging failed: %v", err)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("level = %v, want debug", log.GetLevel())
	}
	if _, ok := log.StandardLogger().Formatter.(*log.JSONFormatter); !ok {
		t.Errorf("formatter = %T, want JSON", log.StandardLogger().Formatter)
	}

	if err := SetupLogging("loud", "text"); err == nil {
		t.Error("expected error for unknown level")
	}
}
