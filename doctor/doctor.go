package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"habla/audio"
	"habla/encoder"
	"habla/segment"
	"habla/shutdown"
	"habla/transcriber"
	"habla/translator"
)

type Options struct {
	Audio       audio.Context
	Device      string
	Transcriber transcriber.Transcriber
	Model       transcriber.ModelSize
	Translator  *translator.Service
	RecordFor   time.Duration
	Out         io.Writer
}

// Main is the -doctor entry point: Run plus terminal housekeeping. An
// interrupt cancels the check in progress and the rest report failure.
func Main(opts Options) int {
	resetTerminal()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	shutdown.Notify(sig)
	defer shutdown.Stop(sig)
	go func() {
		select {
		case <-sig:
			fmt.Fprintln(os.Stderr, "\nInterrupted")
			cancel()
		case <-ctx.Done():
		}
	}()
	return Run(ctx, opts)
}

// Run executes every check in order and returns an exit code (0=all pass,
// 1=any fail). Later checks still run after a failure.
func Run(ctx context.Context, opts Options) int {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.RecordFor <= 0 {
		opts.RecordFor = 2 * time.Second
	}
	out := opts.Out

	fmt.Fprintln(out, "habla doctor - system diagnostics")
	fmt.Fprintln(out, "=================================")

	checks := []struct {
		name string
		fn   func(context.Context, Options) (string, error)
	}{
		{"Input devices", checkDevices},
		{"Recording", checkRecording},
		{"Transcription model", checkTranscriber},
		{"Translation model", checkTranslator},
	}

	allPass := true
	for i, c := range checks {
		fmt.Fprintf(out, "\n[%d/%d] %s\n", i+1, len(checks), c.name)
		msg, err := c.fn(ctx, opts)
		if err != nil {
			fmt.Fprintf(out, "  FAIL: %v\n", err)
			allPass = false
			continue
		}
		fmt.Fprintf(out, "  PASS: %s\n", msg)
	}

	fmt.Fprintln(out)
	if allPass {
		fmt.Fprintln(out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(out, "Some checks failed. See details above.")
	return 1
}

func checkDevices(_ context.Context, opts Options) (string, error) {
	cat := audio.NewCatalog(opts.Audio)
	devs := cat.ListInputDevices()
	for _, d := range devs {
		suffix := ""
		if audio.IsBluetooth(d.Name) {
			suffix = " (bluetooth)"
		}
		fmt.Fprintf(opts.Out, "  %d. %s%s\n", d.Index, d.Name, suffix)
	}
	if _, err := cat.Resolve(opts.Device); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d device(s), %q resolves", len(devs), deviceLabel(opts.Device)), nil
}

func deviceLabel(name string) string {
	if name == "" {
		return audio.DefaultDeviceName
	}
	return name
}

func checkRecording(_ context.Context, opts Options) (string, error) {
	dev, err := audio.NewCatalog(opts.Audio).Resolve(opts.Device)
	if err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp("", "habla-doctor-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "doctor.wav")

	var stop atomic.Bool
	rec := audio.NewRecorder(opts.Audio, dev, path, &stop, audio.StreamConfig{}, audio.RecorderHooks{})
	timer := time.AfterFunc(opts.RecordFor, func() { stop.Store(true) })
	defer timer.Stop()

	fmt.Fprintf(opts.Out, "  Recording %s from %s...\n", opts.RecordFor, dev.Name)
	if err := rec.Run(); err != nil {
		return "", fmt.Errorf("recorder: %w", err)
	}
	pcm, rate, err := encoder.ReadWAVFile(path)
	if err != nil {
		return "", fmt.Errorf("no audio written: %w", err)
	}
	var peak float64
	for off := 0; off+audio.RecordChunk <= len(pcm); off += audio.RecordChunk {
		peak = max(peak, segment.RMS(pcm[off:off+audio.RecordChunk]))
	}
	secs := float64(len(pcm)) / float64(rate)
	return fmt.Sprintf("%.1fs at %d Hz, peak RMS %.0f", secs, rate, peak), nil
}

func checkTranscriber(ctx context.Context, opts Options) (string, error) {
	if opts.Transcriber == nil {
		return "", errors.New("no transcriber configured")
	}
	size := opts.Model
	if size == "" {
		size = transcriber.DefaultModel
	}
	t0 := time.Now()
	if err := opts.Transcriber.Load(ctx, size); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s loaded in %s", opts.Transcriber.Name(), size, time.Since(t0).Round(time.Millisecond)), nil
}

func checkTranslator(ctx context.Context, opts Options) (string, error) {
	if opts.Translator == nil {
		return "", errors.New("no translator configured")
	}
	if err := opts.Translator.Load(ctx); err != nil {
		return "", err
	}
	out, ok := opts.Translator.Translate(ctx, "hello")
	if !ok {
		return "", errors.New(out)
	}
	return fmt.Sprintf("%s: hello -> %s", opts.Translator.Name(), out), nil
}
