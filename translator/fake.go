package translator

import (
	"context"
	"strings"
	"sync"
)

// Fake translates from a fixed phrase table and falls back to tagging the
// input. Queued errors are returned first.
type Fake struct {
	mu      sync.Mutex
	table   map[string]string
	errs    []error
	loadErr error
	calls   int
}

func NewFake() *Fake {
	return &Fake{table: map[string]string{
		"hello":       "hola",
		"good night":  "buenas noches",
		"thank you":   "gracias",
		"how are you": "cómo estás",
	}}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) SetLoadError(err error) {
	f.mu.Lock()
	f.loadErr = err
	f.mu.Unlock()
}

func (f *Fake) Fail(errs ...error) {
	f.mu.Lock()
	f.errs = append(f.errs, errs...)
	f.mu.Unlock()
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) Load(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadErr
}

func (f *Fake) Translate(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	key := strings.ToLower(strings.Trim(text, " .!?"))
	if out, ok := f.table[key]; ok {
		return out, nil
	}
	return "[es] " + text, nil
}
