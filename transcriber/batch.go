package transcriber

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"habla/audio"
	"habla/encoder"
)

type upload struct {
	Data        []byte
	ContentType string
	Ext         string
	Stats       encoder.Stats
}

type sendFunc func(ctx context.Context, up upload, size ModelSize) (*Result, error)

// batch is the shared body of every request/response backend: encode the
// utterance, send it, normalize the text.
type batch struct {
	name    string
	format  string
	client  *TracedClient
	warmURL string
	// warmup transcribes a short silence on Load so a lazily loading server
	// has the model resident before the first real utterance.
	warmup bool
	send   sendFunc

	mu     sync.Mutex
	loaded map[ModelSize]bool
}

func (b *batch) Name() string { return b.name }

func (b *batch) Load(ctx context.Context, size ModelSize) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loaded[size] {
		return nil
	}
	if b.warmURL != "" {
		b.client.WarmConnection(ctx, b.warmURL)
	}
	if b.warmup {
		silence := audio.Waveform{Samples: make([]float32, encoder.SampleRate/2), SampleRate: encoder.SampleRate}
		if _, err := b.transcribe(ctx, silence, size); err != nil {
			return fmt.Errorf("loading %s model %s: %w", b.name, size, err)
		}
	}
	if b.loaded == nil {
		b.loaded = make(map[ModelSize]bool)
	}
	b.loaded[size] = true
	return nil
}

func (b *batch) Transcribe(ctx context.Context, wf audio.Waveform, size ModelSize) (*Result, error) {
	res, err := b.transcribe(ctx, wf, size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.name, err)
	}
	return res, nil
}

func (b *batch) transcribe(ctx context.Context, wf audio.Waveform, size ModelSize) (*Result, error) {
	enc, stats, err := encoder.EncodeAll(b.format, wf.PCM(), wf.SampleRate)
	if err != nil {
		return nil, err
	}
	res, err := b.send(ctx, upload{
		Data:        enc.Bytes(),
		ContentType: enc.ContentType(),
		Ext:         enc.Ext(),
		Stats:       stats,
	}, size)
	if err != nil {
		return nil, err
	}
	res.Text = strings.TrimSpace(res.Text)
	res.Upload = stats
	return res, nil
}

// FormatMetrics renders the per-request timings for the diagnostics log.
func FormatMetrics(r *Result) []string {
	lines := []string{
		fmt.Sprintf("audio:      %s %d frames, %.1f KB, encoded in %dms",
			r.Upload.Format, r.Upload.Frames, float64(r.Upload.Bytes)/1024, r.Upload.EncodeTime.Milliseconds()),
	}
	if r.Model != "" {
		lines = append(lines, fmt.Sprintf("model:      %s", r.Model))
	}
	if m := r.Metrics; m != nil {
		reused := ""
		if m.ConnReused {
			reused = " (reused)"
		}
		lines = append(lines,
			fmt.Sprintf("conn_wait:  %dms%s", m.ConnWait.Milliseconds(), reused),
			fmt.Sprintf("dns:        %dms", m.DNS.Milliseconds()),
			fmt.Sprintf("tcp:        %dms", m.TCP.Milliseconds()),
			fmt.Sprintf("tls:        %dms", m.TLS.Milliseconds()),
			fmt.Sprintf("req_body:   %dms", m.ReqBody.Milliseconds()),
			fmt.Sprintf("ttfb:       %dms", m.TTFB.Milliseconds()),
			fmt.Sprintf("download:   %dms", m.Download.Milliseconds()),
			fmt.Sprintf("total:      %dms", m.Sum().Milliseconds()),
		)
	}
	if r.Duration > 0 {
		lines = append(lines, fmt.Sprintf("api_dur:    %.2fs", r.Duration))
	}
	if r.Confidence > 0 {
		lines = append(lines, fmt.Sprintf("confidence: %.4f", r.Confidence))
	}
	if r.RateLimit != "" {
		lines = append(lines, fmt.Sprintf("ratelimit:  %s", r.RateLimit))
	}
	return lines
}
