package audio

import (
	"fmt"
	"sync/atomic"
	"time"

	"habla/encoder"
	"habla/log"
)

const (
	RecordSampleRate = 44100
	RecordChunk      = 1024
)

type RecorderState int32

const (
	RecorderIdle RecorderState = iota
	RecorderRecording
)

func (s RecorderState) String() string {
	if s == RecorderRecording {
		return "recording"
	}
	return "idle"
}

// RecorderHooks lets the owner observe the recorder without the recorder
// knowing about the UI or metrics.
type RecorderHooks struct {
	Status  func(string)
	Frame   func()
	Dropped func()
}

// Recorder captures the raw session audio and writes it as a single WAV file
// when the run's stop flag is raised.
type Recorder struct {
	ctx    Context
	device DeviceDescriptor
	path   string
	cfg    StreamConfig
	stop   *atomic.Bool
	hooks  RecorderHooks

	state   atomic.Int32
	samples []int16
}

func NewRecorder(ctx Context, device DeviceDescriptor, path string, stop *atomic.Bool, cfg StreamConfig, hooks RecorderHooks) *Recorder {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = RecordSampleRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = RecordChunk
	}
	if stop == nil {
		stop = new(atomic.Bool)
	}
	return &Recorder{ctx: ctx, device: device, path: path, cfg: cfg, stop: stop, hooks: hooks}
}

func (r *Recorder) State() RecorderState { return RecorderState(r.state.Load()) }

// RequestStop raises the stop flag. Run notices it before its next read.
func (r *Recorder) RequestStop() { r.stop.Store(true) }

// Samples returns the number of samples captured so far. Only meaningful
// after Run returns.
func (r *Recorder) Samples() int { return len(r.samples) }

func (r *Recorder) status(s string) {
	if r.hooks.Status != nil {
		r.hooks.Status(s)
	}
}

// Run is the recorder goroutine body. It returns when the stop flag is set
// or the device fails, after flushing whatever was captured.
func (r *Recorder) Run() error {
	stream, err := OpenStream(r.ctx, r.device.Info(), r.cfg)
	if err != nil {
		log.Errorf("recorder open %q: %v", r.device.Name, err)
		r.status("Error: " + err.Error())
		return err
	}
	if r.hooks.Dropped != nil {
		stream.OnDrop(r.hooks.Dropped)
	}

	r.state.Store(int32(RecorderRecording))
	r.status("Recording...")
	log.Info(fmt.Sprintf("recorder started device=%q rate=%d chunk=%d", r.device.Name, r.cfg.SampleRate, r.cfg.FrameSize))

	started := time.Now()
	var readErr error
	for !r.stop.Load() {
		f, err := stream.ReadFrame()
		if err != nil {
			readErr = err
			log.Errorf("recorder read: %v", err)
			break
		}
		r.samples = append(r.samples, f...)
		if r.hooks.Frame != nil {
			r.hooks.Frame()
		}
	}
	stream.Close()
	r.state.Store(int32(RecorderIdle))

	log.Info(fmt.Sprintf("recorder stopped samples=%d elapsed=%s dropped=%d",
		len(r.samples), time.Since(started).Round(time.Millisecond), stream.Dropped()))

	if err := r.flush(); err != nil {
		return err
	}
	return readErr
}

func (r *Recorder) flush() error {
	if len(r.samples) == 0 {
		return nil
	}
	if err := encoder.WriteWAVFile(r.path, r.samples, r.cfg.SampleRate); err != nil {
		log.Errorf("write session audio %s: %v", r.path, err)
		return fmt.Errorf("write session audio: %w", err)
	}
	return nil
}
