package encoder

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// FlacEncoder writes mono 16-bit FLAC into memory, one frame per block.
// Blocks longer than BlockSize are split so every frame stays within the
// bounds announced in STREAMINFO.
type FlacEncoder struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	enc     *flac.Encoder
	rate    int
	frames  uint64
	scratch []int32
}

func NewFlac(sampleRate int) (*FlacEncoder, error) {
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}
	e := &FlacEncoder{rate: sampleRate}
	enc, err := flac.NewEncoder(&e.buf, &meta.StreamInfo{
		BlockSizeMin:  16,
		BlockSizeMax:  BlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
	})
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	// Let the encoder pick fixed predictors per subframe; speech compresses
	// to roughly half of verbatim.
	enc.EnablePredictionAnalysis(true)
	e.enc = enc
	return e, nil
}

func (e *FlacEncoder) EncodeBlock(block []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(block) > 0 {
		n := min(len(block), BlockSize)
		if err := e.writeFrame(block[:n]); err != nil {
			return err
		}
		block = block[n:]
	}
	return nil
}

func (e *FlacEncoder) writeFrame(pcm []int16) error {
	if cap(e.scratch) < len(pcm) {
		e.scratch = make([]int32, BlockSize)
	}
	samples := e.scratch[:len(pcm)]
	for i, s := range pcm {
		samples[i] = int32(s)
	}
	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(pcm)),
			SampleRate:    uint32(e.rate),
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples,
			NSamples:  len(pcm),
		}},
	}
	if err := e.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	e.frames += uint64(len(pcm))
	return nil
}

func (e *FlacEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enc.Close()
}

func (e *FlacEncoder) Bytes() []byte       { return e.buf.Bytes() }
func (e *FlacEncoder) TotalFrames() uint64 { return e.frames }
func (e *FlacEncoder) ContentType() string { return "audio/flac" }
func (e *FlacEncoder) Ext() string         { return "flac" }
