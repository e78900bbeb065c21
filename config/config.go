package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"habla/segment"
	"habla/transcriber"
	"habla/translator"
)

// EnvPrefix is prepended to every environment variable, e.g.
// HABLA_TRANSCRIBER_PROVIDER.
const EnvPrefix = "HABLA"

type Transcriber struct {
	Provider string        `toml:"provider" envconfig:"PROVIDER"`
	URL      string        `toml:"url" envconfig:"URL"`
	APIKey   string        `toml:"api_key" envconfig:"API_KEY"`
	Format   string        `toml:"format" envconfig:"FORMAT"` // flac, wav
	Language string        `toml:"language" envconfig:"LANGUAGE"`
	Timeout  time.Duration `toml:"timeout" envconfig:"TIMEOUT"`
}

type Translator struct {
	Provider string        `toml:"provider" envconfig:"PROVIDER"`
	URL      string        `toml:"url" envconfig:"URL"`
	APIKey   string        `toml:"api_key" envconfig:"API_KEY"`
	Timeout  time.Duration `toml:"timeout" envconfig:"TIMEOUT"`
}

type Segment struct {
	Detector        string        `toml:"detector" envconfig:"DETECTOR"` // webrtc, energy
	VADMode         int           `toml:"vad_mode" envconfig:"VAD_MODE"`
	EnergyThreshold float64       `toml:"energy_threshold" envconfig:"ENERGY_THRESHOLD"`
	PauseThreshold  time.Duration `toml:"pause_threshold" envconfig:"PAUSE_THRESHOLD"`
	MaxPhrase       time.Duration `toml:"max_phrase" envconfig:"MAX_PHRASE"`
}

type Config struct {
	Device      string `toml:"device" envconfig:"DEVICE"`
	Model       string `toml:"model" envconfig:"MODEL"`
	SessionsDir string `toml:"sessions_dir" envconfig:"SESSIONS_DIR"`
	LogLevel    string `toml:"log_level" envconfig:"LOG_LEVEL"`
	APIAddr     string `toml:"api_addr" envconfig:"API_ADDR"`
	Beep        bool   `toml:"beep" envconfig:"BEEP"`

	ListenTimeout time.Duration `toml:"listen_timeout" envconfig:"LISTEN_TIMEOUT"`
	ErrorBackoff  time.Duration `toml:"error_backoff" envconfig:"ERROR_BACKOFF"`
	CloseTimeout  time.Duration `toml:"close_timeout" envconfig:"CLOSE_TIMEOUT"`

	Transcriber Transcriber `toml:"transcriber"`
	Translator  Translator  `toml:"translator"`
	Segment     Segment     `toml:"segment"`

	// Path of the TOML file that was read, empty if none.
	Source string `toml:"-" ignored:"true"`
}

func Default() Config {
	seg := segment.DefaultConfig()
	return Config{
		Model:         string(transcriber.DefaultModel),
		SessionsDir:   "sessions",
		LogLevel:      "info",
		APIAddr:       "127.0.0.1:8080",
		Beep:          true,
		ListenTimeout: 2 * time.Second,
		ErrorBackoff:  2 * time.Second,
		CloseTimeout:  5 * time.Second,
		Transcriber: Transcriber{
			Provider: "local",
			Format:   "flac",
			Language: "en",
			Timeout:  30 * time.Second,
		},
		Translator: Translator{
			Provider: "libretranslate",
			URL:      "http://localhost:5000",
			Timeout:  10 * time.Second,
		},
		Segment: Segment{
			Detector:        seg.Detector,
			VADMode:         seg.VADMode,
			EnergyThreshold: seg.EnergyThreshold,
			PauseThreshold:  seg.PauseThreshold,
			MaxPhrase:       seg.MaxPhrase,
		},
	}
}

// Load layers defaults, the TOML file, a .env file in the working directory
// and HABLA_* environment variables, in that order. path overrides the
// default file location; a missing default file is not an error but a
// missing explicit one is.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
			cfg.Source = path
		} else if explicit {
			return cfg, fmt.Errorf("config file: %w", err)
		}
	}

	_ = godotenv.Load()

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	cfg.SessionsDir = expandTilde(cfg.SessionsDir)
	return cfg, nil
}

// DefaultPath is $XDG_CONFIG_HOME/habla/config.toml or ~/.config/habla/config.toml.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "habla", "config.toml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "habla", "config.toml")
	}
	return ""
}

func (c Config) Validate() error {
	var errs []error
	if _, err := transcriber.ParseModelSize(c.Model); err != nil {
		errs = append(errs, err)
	}
	switch c.Transcriber.Provider {
	case "", "local", "fake":
	case "openai", "groq", "deepgram":
		if c.Transcriber.APIKey == "" {
			errs = append(errs, fmt.Errorf("transcriber %s needs an api key", c.Transcriber.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transcriber provider %q", c.Transcriber.Provider))
	}
	switch c.Transcriber.Format {
	case "", "flac", "wav":
	default:
		errs = append(errs, fmt.Errorf("unknown upload format %q", c.Transcriber.Format))
	}
	switch c.Translator.Provider {
	case "", "libretranslate", "fake":
	default:
		errs = append(errs, fmt.Errorf("unknown translator provider %q", c.Translator.Provider))
	}
	switch c.Segment.Detector {
	case "", "webrtc", "energy":
	default:
		errs = append(errs, fmt.Errorf("unknown detector %q", c.Segment.Detector))
	}
	if c.Segment.VADMode < 0 || c.Segment.VADMode > 3 {
		errs = append(errs, fmt.Errorf("vad_mode %d out of range 0-3", c.Segment.VADMode))
	}
	for name, d := range map[string]time.Duration{
		"listen_timeout":  c.ListenTimeout,
		"error_backoff":   c.ErrorBackoff,
		"close_timeout":   c.CloseTimeout,
		"pause_threshold": c.Segment.PauseThreshold,
		"max_phrase":      c.Segment.MaxPhrase,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Segment.MaxPhrase > 0 && c.Segment.PauseThreshold >= c.Segment.MaxPhrase {
		errs = append(errs, errors.New("pause_threshold must be shorter than max_phrase"))
	}
	return errors.Join(errs...)
}

// SegmentConfig maps the file settings onto the segmenter's config.
func (c Config) SegmentConfig() segment.Config {
	sc := segment.DefaultConfig()
	if c.Segment.Detector != "" {
		sc.Detector = c.Segment.Detector
	}
	sc.VADMode = c.Segment.VADMode
	if c.Segment.EnergyThreshold > 0 {
		sc.EnergyThreshold = c.Segment.EnergyThreshold
	}
	if c.Segment.PauseThreshold > 0 {
		sc.PauseThreshold = c.Segment.PauseThreshold
	}
	if c.Segment.MaxPhrase > 0 {
		sc.MaxPhrase = c.Segment.MaxPhrase
	}
	return sc
}

func (c Config) TranscriberOptions() transcriber.Options {
	t := c.Transcriber
	return transcriber.Options{
		Provider: t.Provider,
		URL:      t.URL,
		APIKey:   t.APIKey,
		Format:   t.Format,
		Language: t.Language,
		Timeout:  t.Timeout,
	}
}

func (c Config) TranslatorOptions() translator.Options {
	t := c.Translator
	return translator.Options{Provider: t.Provider, URL: t.URL, APIKey: t.APIKey, Timeout: t.Timeout}
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
