package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultsValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	path := writeFile(t, dir, "habla.toml", `
model = "small"
device = "USB Mic"
listen_timeout = "500ms"

[transcriber]
provider = "groq"
api_key = "from-file"

[segment]
detector = "energy"
pause_threshold = "1s"
`)
	writeFile(t, dir, ".env", "HABLA_TRANSCRIBER_API_KEY=from-dotenv\nHABLA_BEEP=false\n")
	t.Cleanup(func() {
		os.Unsetenv("HABLA_TRANSCRIBER_API_KEY")
		os.Unsetenv("HABLA_BEEP")
	})
	t.Setenv("HABLA_MODEL", "medium")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source != path {
		t.Errorf("Source = %q", cfg.Source)
	}
	tests := []struct {
		name string
		got  any
		want any
	}{
		{"env beats file", cfg.Model, "medium"},
		{"file beats default", cfg.Device, "USB Mic"},
		{"file duration", cfg.ListenTimeout, 500 * time.Millisecond},
		{"dotenv beats file", cfg.Transcriber.APIKey, "from-dotenv"},
		{"dotenv bool", cfg.Beep, false},
		{"nested file", cfg.Segment.PauseThreshold, time.Second},
		{"default kept", cfg.ErrorBackoff, 2 * time.Second},
		{"default provider kept", cfg.Translator.Provider, "libretranslate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if sc := cfg.SegmentConfig(); sc.Detector != "energy" || sc.PauseThreshold != time.Second {
		t.Errorf("SegmentConfig = %+v", sc)
	}
}

func TestLoadMissingFiles(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("missing default file should not fail: %v", err)
	}
	if cfg.Source != "" {
		t.Errorf("Source = %q", cfg.Source)
	}

	if _, err := Load(filepath.Join(dir, "nope.toml")); err == nil {
		t.Error("missing explicit file should fail")
	}
}

func TestLoadBadToml(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeFile(t, dir, "bad.toml", "model = [\n")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad model", func(c *Config) { c.Model = "huge" }, "huge"},
		{"key required", func(c *Config) { c.Transcriber.Provider = "openai" }, "api key"},
		{"bad provider", func(c *Config) { c.Transcriber.Provider = "carrier-pigeon" }, "carrier-pigeon"},
		{"bad format", func(c *Config) { c.Transcriber.Format = "ogg" }, "ogg"},
		{"bad translator", func(c *Config) { c.Translator.Provider = "babelfish" }, "babelfish"},
		{"bad detector", func(c *Config) { c.Segment.Detector = "magic" }, "magic"},
		{"vad mode", func(c *Config) { c.Segment.VADMode = 7 }, "vad_mode"},
		{"zero backoff", func(c *Config) { c.ErrorBackoff = 0 }, "error_backoff"},
		{"pause vs phrase", func(c *Config) { c.Segment.PauseThreshold = time.Minute }, "max_phrase"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := expandTilde("~/habla"); got != filepath.Join(home, "habla") {
		t.Errorf("expandTilde = %q", got)
	}
	if got := expandTilde("/abs"); got != "/abs" {
		t.Errorf("expandTilde = %q", got)
	}
}
