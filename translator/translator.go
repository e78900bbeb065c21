package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"habla/log"
)

const (
	SourceLang  = "en"
	TargetLang  = "es"
	SourceLabel = "English"
	TargetLabel = "Spanish"

	// ErrorPrefix starts the text returned in place of a translation when the
	// backend fails.
	ErrorPrefix = "Translation error: "
)

var errEmptyTranslation = errors.New("empty translation")

// Backend translates English to Spanish.
type Backend interface {
	Name() string
	Load(ctx context.Context) error
	Translate(ctx context.Context, text string) (string, error)
}

type Options struct {
	Provider string // libretranslate or fake
	URL      string
	APIKey   string
	Timeout  time.Duration
}

func NewBackend(opts Options) (Backend, error) {
	switch opts.Provider {
	case "", "libretranslate":
		return NewLibre(opts), nil
	case "fake":
		return NewFake(), nil
	default:
		return nil, fmt.Errorf("unknown translation provider %q", opts.Provider)
	}
}

// Service is the process-wide translator. It is loaded once and serializes
// calls into the backend.
type Service struct {
	backend Backend

	mu     sync.Mutex
	loaded bool
}

func NewService(b Backend) *Service {
	return &Service{backend: b}
}

func (s *Service) Name() string { return s.backend.Name() }

// Load is idempotent; after the first success it returns nil immediately.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	if err := s.backend.Load(ctx); err != nil {
		return fmt.Errorf("loading %s translator: %w", s.backend.Name(), err)
	}
	s.loaded = true
	log.Info(fmt.Sprintf("translator loaded provider=%s pair=%s-%s", s.backend.Name(), SourceLang, TargetLang))
	return nil
}

// Translate never fails. A backend error comes back as ErrorPrefix followed
// by the error text, with ok set to false.
func (s *Service) Translate(ctx context.Context, text string) (out string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.backend.Translate(ctx, text)
	if err == nil {
		res = strings.TrimSpace(res)
		if res == "" {
			err = errEmptyTranslation
		}
	}
	if err != nil {
		log.Errorf("translate: %v", err)
		return ErrorPrefix + err.Error(), false
	}
	return res, true
}
