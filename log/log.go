// Package log writes the two long-lived habla logs: a structured
// diagnostics log and a plain transcript log spanning every session.
// Calls made before Init, or after Close, are dropped.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DiagnosticsFile = "diagnostics_log.txt"
	TranscriptFile  = "transcribe_log.txt"

	stampLayout = "2006-01-02 15:04:05"
)

// sink owns the open log files. A nil *sink means logging is off.
type sink struct {
	diag       zerolog.Logger
	diagFile   *os.File
	transcript *os.File
	pid        int
}

var (
	mu  sync.Mutex
	out *sink
	dir string
)

// Cycle is the timing breakdown of one listen/transcribe/translate pass.
type Cycle struct {
	Session      string
	AudioS       float64
	TranscribeMs float64
	TranslateMs  float64
	UploadKB     float64
	Format       string
	Model        string
	ConnReused   bool
	TLSProto     string
	TTFBMs       float64
}

// ResolveDir picks the log directory: the -logpath flag, then
// HABLA_LOG_PATH, then the per-OS default. Relative paths are taken from
// the working directory.
func ResolveDir(flagPath string) (string, error) {
	for _, p := range []string{flagPath, os.Getenv("HABLA_LOG_PATH")} {
		if p == "" {
			continue
		}
		if filepath.IsAbs(p) {
			return p, nil
		}
		return filepath.Abs(p)
	}
	return getDefaultDir()
}

func SetDir(d string) { dir = d }

func Dir() string { return dir }

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create log directory %s: %w", dir, err)
	}
	return nil
}

func openAppend(name string) (*os.File, error) {
	return os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// Init opens both log files in the configured directory. Calling it again
// reopens them.
func Init() error {
	if err := EnsureDir(); err != nil {
		return err
	}
	diagFile, err := openAppend(DiagnosticsFile)
	if err != nil {
		return err
	}
	transcript, err := openAppend(TranscriptFile)
	if err != nil {
		diagFile.Close()
		return err
	}

	s := &sink{diagFile: diagFile, transcript: transcript, pid: os.Getpid()}
	s.diag = zerolog.New(zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: stampLayout,
		NoColor:    true,
	}).With().Timestamp().Int("pid", s.pid).Logger()

	mu.Lock()
	old := out
	out = s
	mu.Unlock()
	old.close()
	return nil
}

func (s *sink) close() {
	if s == nil {
		return
	}
	s.diagFile.Close()
	s.transcript.Close()
}

func Close() {
	mu.Lock()
	s := out
	out = nil
	mu.Unlock()
	s.close()
}

// event starts a diagnostics entry at level, or returns nil when logging
// is off. zerolog treats a nil *Event as a no-op.
func event(level zerolog.Level) *zerolog.Event {
	mu.Lock()
	defer mu.Unlock()
	if out == nil {
		return nil
	}
	return out.diag.WithLevel(level)
}

func Info(msg string)  { event(zerolog.InfoLevel).Msg(msg) }
func Warn(msg string)  { event(zerolog.WarnLevel).Msg(msg) }
func Error(msg string) { event(zerolog.ErrorLevel).Msg(msg) }

func Warnf(format string, args ...any)  { event(zerolog.WarnLevel).Msgf(format, args...) }
func Errorf(format string, args ...any) { event(zerolog.ErrorLevel).Msgf(format, args...) }

// SetLevel applies a zerolog level name such as "debug" or "warn".
func SetLevel(level string) error {
	if level == "" {
		return nil
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	mu.Lock()
	if out != nil {
		out.diag = out.diag.Level(l)
	}
	mu.Unlock()
	return nil
}

func CycleMetrics(c Cycle) {
	conn := "new"
	if c.ConnReused {
		conn = "reused"
	}
	ev := event(zerolog.InfoLevel).
		Str("session", c.Session).
		Str("model", c.Model).
		Str("format", c.Format).
		Str("conn", conn)
	if c.TLSProto != "" {
		ev = ev.Str("tls_proto", c.TLSProto)
	}
	ev.Float64("audio_s", c.AudioS).
		Float64("upload_kb", c.UploadKB).
		Float64("ttfb_ms", c.TTFBMs).
		Float64("transcribe_ms", c.TranscribeMs).
		Float64("translate_ms", c.TranslateMs).
		Msg("cycle")
}

// TranscriptionText appends "<time>\t[<pid>]\t<english>\t<spanish>" to the
// transcript log.
func TranscriptionText(english, spanish string) {
	mu.Lock()
	defer mu.Unlock()
	if out == nil {
		return
	}
	fmt.Fprintf(out.transcript, "%s\t[%d]\t%s\t%s\n", time.Now().Format(stampLayout), out.pid, english, spanish)
}

func SessionStart(id, device, model, provider string) {
	event(zerolog.InfoLevel).
		Str("session", id).
		Str("device", device).
		Str("model", model).
		Str("provider", provider).
		Msg("session_start")
}

func SessionEnd(id string, lines int, elapsed time.Duration) {
	event(zerolog.InfoLevel).
		Str("session", id).
		Int("lines", lines).
		Dur("elapsed", elapsed).
		Msg("session_end")
}
