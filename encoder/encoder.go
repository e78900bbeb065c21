package encoder

import (
	"fmt"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Encoder accumulates mono int16 blocks into an in-memory container.
type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
	ContentType() string
	Ext() string
}

func New(format string, sampleRate int) (Encoder, error) {
	switch format {
	case "", "flac":
		return NewFlac(sampleRate)
	case "wav":
		return NewWAV(sampleRate)
	default:
		return nil, fmt.Errorf("unknown audio format %q", format)
	}
}

// Stats is what an upload reports about its encoding step.
type Stats struct {
	Format     string
	Bytes      int
	Frames     uint64
	EncodeTime time.Duration
}

// EncodeAll runs pcm through a fresh encoder block by block.
func EncodeAll(format string, pcm []int16, sampleRate int) (Encoder, Stats, error) {
	start := time.Now()
	enc, err := New(format, sampleRate)
	if err != nil {
		return nil, Stats{}, err
	}
	for i := 0; i < len(pcm); i += BlockSize {
		end := min(i+BlockSize, len(pcm))
		if err := enc.EncodeBlock(pcm[i:end]); err != nil {
			return nil, Stats{}, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, Stats{}, fmt.Errorf("closing %s encoder: %w", enc.Ext(), err)
	}
	return enc, Stats{
		Format:     enc.Ext(),
		Bytes:      len(enc.Bytes()),
		Frames:     enc.TotalFrames(),
		EncodeTime: time.Since(start),
	}, nil
}
