package segment

import (
	"errors"
	"fmt"
	"time"

	"habla/audio"
)

var (
	// ErrTimeout means no speech started within the listen timeout.
	ErrTimeout = errors.New("listening timed out waiting for phrase to start")
	// ErrAborted means the abort hook fired while listening.
	ErrAborted = errors.New("listen aborted")
)

type Config struct {
	SampleRate      int
	FrameMs         int
	Debounce        int // consecutive voiced frames that confirm speech
	PauseThreshold  time.Duration
	MaxPhrase       time.Duration
	PreRoll         time.Duration
	Detector        string // webrtc or energy
	VADMode         int
	EnergyThreshold float64
	StallTimeout    time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate:      16000,
		FrameMs:         20,
		Debounce:        3,
		PauseThreshold:  800 * time.Millisecond,
		MaxPhrase:       30 * time.Second,
		PreRoll:         300 * time.Millisecond,
		Detector:        "webrtc",
		VADMode:         3,
		EnergyThreshold: 500,
		StallTimeout:    3 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.FrameMs <= 0 {
		c.FrameMs = d.FrameMs
	}
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	if c.PauseThreshold <= 0 {
		c.PauseThreshold = d.PauseThreshold
	}
	if c.MaxPhrase <= 0 {
		c.MaxPhrase = d.MaxPhrase
	}
	if c.PreRoll < 0 {
		c.PreRoll = 0
	}
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = d.EnergyThreshold
	}
	return c
}

func (c Config) frameSamples() int { return c.SampleRate * c.FrameMs / 1000 }

// Utterance is one contiguous span of speech.
type Utterance struct {
	audio.Waveform
	Start    time.Time
	Duration time.Duration
}

// Source delivers audio frames of any size. *audio.Stream satisfies it.
type Source interface {
	ReadFrame() (audio.Frame, error)
}

// Segmenter cuts a continuous stream into utterances. Pre-roll and the
// speech debounce carry over between Listen calls, so a phrase that starts
// right at a timeout boundary is not clipped.
type Segmenter struct {
	src    Source
	det    Detector
	cfg    Config
	frameN int
	abort  func() bool
	closer func()

	pending []int16
	preroll [][]int16
	run     int

	frames       int
	speechFrames int
}

func New(src Source, cfg Config) (*Segmenter, error) {
	cfg = cfg.withDefaults()
	det, err := NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithDetector(src, det, cfg), nil
}

func NewWithDetector(src Source, det Detector, cfg Config) *Segmenter {
	cfg = cfg.withDefaults()
	return &Segmenter{src: src, det: det, cfg: cfg, frameN: cfg.frameSamples()}
}

// Open starts a dedicated capture stream on device for segmentation.
func Open(ctx audio.Context, device audio.DeviceDescriptor, cfg Config) (*Segmenter, error) {
	cfg = cfg.withDefaults()
	det, err := NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	stream, err := audio.OpenStream(ctx, device.Info(), audio.StreamConfig{
		SampleRate:   cfg.SampleRate,
		FrameSize:    cfg.frameSamples(),
		QueueFrames:  int(cfg.MaxPhrase / (time.Duration(cfg.FrameMs) * time.Millisecond)),
		StallTimeout: cfg.StallTimeout,
	})
	if err != nil {
		return nil, err
	}
	s := NewWithDetector(stream, det, cfg)
	s.closer = stream.Close
	return s, nil
}

// SetAbort installs a hook polled once per frame; when it reports true
// Listen returns ErrAborted.
func (s *Segmenter) SetAbort(fn func() bool) { s.abort = fn }

func (s *Segmenter) Close() {
	if s.closer != nil {
		s.closer()
	}
}

func (s *Segmenter) Detector() string { return s.det.Name() }

// Stats reports frames classified so far and how many were voiced.
func (s *Segmenter) Stats() (total, speech int) { return s.frames, s.speechFrames }

func (s *Segmenter) nextFrame() ([]int16, error) {
	for len(s.pending) < s.frameN {
		f, err := s.src.ReadFrame()
		if err != nil {
			return nil, err
		}
		s.pending = append(s.pending, f...)
	}
	frame := make([]int16, s.frameN)
	copy(frame, s.pending)
	s.pending = s.pending[s.frameN:]
	return frame, nil
}

func (s *Segmenter) classify(frame []int16) bool {
	active, err := s.det.IsSpeech(frame, s.cfg.SampleRate)
	s.frames++
	if err != nil {
		return false
	}
	if active {
		s.speechFrames++
	}
	return active
}

func (s *Segmenter) prerollCap() int {
	n := int(s.cfg.PreRoll / (time.Duration(s.cfg.FrameMs) * time.Millisecond))
	return max(n, s.cfg.Debounce)
}

func (s *Segmenter) pushPreroll(frame []int16) {
	s.preroll = append(s.preroll, frame)
	if over := len(s.preroll) - s.prerollCap(); over > 0 {
		s.preroll = s.preroll[over:]
	}
}

func (s *Segmenter) frameDur() time.Duration {
	return time.Duration(s.cfg.FrameMs) * time.Millisecond
}

// Listen waits for speech to start, then collects it until a trailing pause
// of PauseThreshold or until MaxPhrase is reached. Timeout is measured in
// audio consumed while waiting; zero waits forever.
func (s *Segmenter) Listen(timeout time.Duration) (Utterance, error) {
	var waited time.Duration
	for {
		if s.abort != nil && s.abort() {
			return Utterance{}, ErrAborted
		}
		frame, err := s.nextFrame()
		if err != nil {
			return Utterance{}, fmt.Errorf("reading audio: %w", err)
		}
		active := s.classify(frame)
		s.pushPreroll(frame)
		if active {
			s.run++
		} else {
			s.run = 0
		}
		if s.run >= s.cfg.Debounce {
			break
		}
		waited += s.frameDur()
		if timeout > 0 && waited >= timeout {
			return Utterance{}, ErrTimeout
		}
	}

	start := time.Now().Add(-time.Duration(len(s.preroll)) * s.frameDur())
	var samples []int16
	for _, f := range s.preroll {
		samples = append(samples, f...)
	}
	s.preroll = s.preroll[:0]
	s.run = 0

	maxSamples := int(int64(s.cfg.MaxPhrase) * int64(s.cfg.SampleRate) / int64(time.Second))
	var silence time.Duration
	for silence < s.cfg.PauseThreshold && len(samples) < maxSamples {
		if s.abort != nil && s.abort() {
			return Utterance{}, ErrAborted
		}
		frame, err := s.nextFrame()
		if err != nil {
			return Utterance{}, fmt.Errorf("reading audio: %w", err)
		}
		samples = append(samples, frame...)
		if s.classify(frame) {
			silence = 0
		} else {
			silence += s.frameDur()
		}
	}

	wf := audio.NewWaveform(samples, s.cfg.SampleRate)
	return Utterance{
		Waveform: wf,
		Start:    start,
		Duration: time.Duration(wf.Duration() * float64(time.Second)),
	}, nil
}
