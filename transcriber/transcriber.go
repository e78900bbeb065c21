package transcriber

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"habla/audio"
	"habla/encoder"
)

type NetworkMetrics struct {
	DNS         time.Duration
	ConnWait    time.Duration
	TCP         time.Duration
	TLS         time.Duration
	ReqHeaders  time.Duration
	ReqBody     time.Duration
	TTFB        time.Duration
	Download    time.Duration
	Total       time.Duration
	ConnReused  bool
	TLSProtocol string
}

func (m *NetworkMetrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

func firstNonEmpty(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

// ModelSize selects the recognition model. Larger is slower and more
// accurate.
type ModelSize string

const (
	ModelTiny   ModelSize = "tiny"
	ModelBase   ModelSize = "base"
	ModelSmall  ModelSize = "small"
	ModelMedium ModelSize = "medium"
	ModelLarge  ModelSize = "large"

	DefaultModel = ModelBase
)

var ModelSizes = []ModelSize{ModelTiny, ModelBase, ModelSmall, ModelMedium, ModelLarge}

func ParseModelSize(s string) (ModelSize, error) {
	if s == "" {
		return DefaultModel, nil
	}
	m := ModelSize(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range ModelSizes {
		if v == m {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown model size %q (want tiny, base, small, medium or large)", s)
}

type Segment struct {
	Text             string
	NoSpeechProb     float64
	AvgLogProb       float64
	CompressionRatio float64
	Temperature      float64
	Start            float64
	End              float64
}

type Result struct {
	Text         string
	Model        string
	Metrics      *NetworkMetrics
	Upload       encoder.Stats
	RateLimit    string
	Confidence   float64
	NoSpeechProb float64
	AvgLogProb   float64
	Duration     float64
	Segments     []Segment
}

// Transcriber turns English speech into English text.
type Transcriber interface {
	Name() string
	// Load prepares the model for size. Repeated calls for a size that is
	// already loaded return immediately.
	Load(ctx context.Context, size ModelSize) error
	Transcribe(ctx context.Context, wf audio.Waveform, size ModelSize) (*Result, error)
}

// DemoPhrases is what the fake provider returns when selected from the
// command line, one per utterance.
var DemoPhrases = []string{"hello", "how are you", "thank you", "good night"}

type Options struct {
	Provider string // local, openai, groq, deepgram or fake
	URL      string
	APIKey   string
	Format   string // flac or wav
	Language string
	Timeout  time.Duration
}

func New(opts Options) (Transcriber, error) {
	if opts.Language == "" {
		opts.Language = "en"
	}
	switch opts.Provider {
	case "", "local":
		return NewLocal(opts), nil
	case "openai":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openai transcriber needs an API key")
		}
		return NewOpenAI(opts), nil
	case "groq":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("groq transcriber needs an API key")
		}
		return NewGroq(opts), nil
	case "deepgram":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("deepgram transcriber needs an API key")
		}
		return NewDeepgram(opts), nil
	case "fake":
		return NewFake(DemoPhrases...), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", opts.Provider)
	}
}
