package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"habla/log"
)

var (
	ErrStreamClosed = errors.New("audio stream closed")
	ErrStalled      = errors.New("audio device stopped delivering samples")
)

// Frame is one fixed-size chunk of mono int16 samples.
type Frame []int16

type StreamConfig struct {
	SampleRate   int
	FrameSize    int // samples per frame
	QueueFrames  int // frames buffered before the oldest is dropped
	StallTimeout time.Duration
	Gain         int
	Boost        bool
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 44100
	}
	if c.FrameSize <= 0 {
		c.FrameSize = 1024
	}
	if c.QueueFrames <= 0 {
		c.QueueFrames = 256
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = 3 * time.Second
	}
	return c
}

// FrameDuration is the wall time covered by one frame.
func (c StreamConfig) FrameDuration() time.Duration {
	c = c.withDefaults()
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

// Stream turns a callback-driven CaptureDevice into blocking fixed-size
// frame reads. The device callback never blocks: when the reader falls
// behind, the oldest queued frame is discarded.
type Stream struct {
	cfg    StreamConfig
	dev    CaptureDevice
	frames chan Frame
	done   chan struct{}

	mu      sync.Mutex
	pending []int16

	dropped   atomic.Int64
	closeOnce sync.Once
	onDrop    atomic.Pointer[func()]
}

// OpenStream opens and starts a capture on device (nil = system default).
func OpenStream(ctx Context, device *DeviceInfo, cfg StreamConfig) (*Stream, error) {
	cfg = cfg.withDefaults()
	dev, err := ctx.NewCapture(device, CaptureConfig{
		SampleRate: uint32(cfg.SampleRate),
		Channels:   1,
		Gain:       cfg.Gain,
		Boost:      cfg.Boost,
	})
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	s := &Stream{
		cfg:    cfg,
		dev:    dev,
		frames: make(chan Frame, cfg.QueueFrames),
		done:   make(chan struct{}),
	}
	dev.SetCallback(s.onData)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return nil, fmt.Errorf("start capture: %w", err)
	}
	return s, nil
}

// OnDrop registers a hook invoked for every discarded frame.
func (s *Stream) OnDrop(fn func()) { s.onDrop.Store(&fn) }

func (s *Stream) Config() StreamConfig { return s.cfg }

func (s *Stream) Dropped() int64 { return s.dropped.Load() }

func (s *Stream) onData(data []byte, _ uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i+1 < len(data); i += 2 {
		s.pending = append(s.pending, int16(binary.LittleEndian.Uint16(data[i:])))
	}
	for len(s.pending) >= s.cfg.FrameSize {
		f := make(Frame, s.cfg.FrameSize)
		copy(f, s.pending[:s.cfg.FrameSize])
		s.pending = s.pending[s.cfg.FrameSize:]
		s.push(f)
	}
}

func (s *Stream) push(f Frame) {
	select {
	case <-s.done:
		return
	default:
	}
	for {
		select {
		case s.frames <- f:
			return
		default:
		}
		select {
		case <-s.frames:
			if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
				log.Warnf("audio queue overflow, dropped %d frames", n)
			}
			if fn := s.onDrop.Load(); fn != nil {
				(*fn)()
			}
		default:
		}
	}
}

// ReadFrame blocks for the next frame. It fails with ErrStalled if the
// device delivers nothing for StallTimeout and ErrStreamClosed after Close.
func (s *Stream) ReadFrame() (Frame, error) {
	timer := time.NewTimer(s.cfg.StallTimeout)
	defer timer.Stop()
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.done:
		return nil, ErrStreamClosed
	case <-timer.C:
		return nil, ErrStalled
	}
}

func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.dev.ClearCallback()
		s.dev.Stop()
		s.dev.Close()
	})
}
