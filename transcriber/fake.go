package transcriber

import (
	"context"
	"errors"
	"sync"
	"time"

	"habla/audio"
)

// Fake returns scripted transcripts in order, repeating the last one once the
// script runs out. Errors can be queued for Load and Transcribe.
type Fake struct {
	mu        sync.Mutex
	texts     []string
	next      int
	loadErrs  []error
	transErrs []error
	delay     time.Duration
	loads     []ModelSize
	calls     int
}

func NewFake(texts ...string) *Fake {
	return &Fake{texts: texts}
}

func (f *Fake) Name() string { return "fake" }

// FailLoad makes the next len(errs) Load calls fail with errs in order.
func (f *Fake) FailLoad(errs ...error) {
	f.mu.Lock()
	f.loadErrs = append(f.loadErrs, errs...)
	f.mu.Unlock()
}

// FailTranscribe queues errors for upcoming Transcribe calls.
func (f *Fake) FailTranscribe(errs ...error) {
	f.mu.Lock()
	f.transErrs = append(f.transErrs, errs...)
	f.mu.Unlock()
}

func (f *Fake) SetDelay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

// Loads lists the sizes Load succeeded for.
func (f *Fake) Loads() []ModelSize {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ModelSize(nil), f.loads...)
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) Load(ctx context.Context, size ModelSize) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.loadErrs) > 0 {
		err := f.loadErrs[0]
		f.loadErrs = f.loadErrs[1:]
		return err
	}
	f.loads = append(f.loads, size)
	return ctx.Err()
}

func (f *Fake) Transcribe(ctx context.Context, wf audio.Waveform, size ModelSize) (*Result, error) {
	f.mu.Lock()
	f.calls++
	delay := f.delay
	var err error
	if len(f.transErrs) > 0 {
		err = f.transErrs[0]
		f.transErrs = f.transErrs[1:]
	}
	text := ""
	if err == nil && len(f.texts) > 0 {
		text = f.texts[min(f.next, len(f.texts)-1)]
		f.next++
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if wf.SampleRate <= 0 {
		return nil, errors.New("fake: waveform has no sample rate")
	}
	return &Result{
		Text:     text,
		Model:    "fake-" + string(size),
		Duration: wf.Duration(),
		Metrics:  &NetworkMetrics{Total: delay},
	}, nil
}
