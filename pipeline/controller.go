package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"habla/audio"
	"habla/log"
	"habla/metrics"
	"habla/segment"
	"habla/session"
	"habla/transcriber"
	"habla/translator"
)

type State int32

const (
	Idle State = iota
	Recording
	Stopping
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Stopping:
		return "stopping"
	default:
		return "idle"
	}
}

const (
	LabelStart = "Start Recording"
	LabelStop  = "Stop Recording"

	StatusLoading      = "Loading model..."
	StatusTranscribing = "Transcribing..."
	StatusStopped      = "Stopped"
	StatusNoDevice     = "Error: Could not find selected microphone"
	StartBanner        = "Starting new transcription session...\n"
)

type Config struct {
	ListenTimeout time.Duration
	ErrorBackoff  time.Duration
	CloseTimeout  time.Duration
	Segment       segment.Config
	Record        audio.StreamConfig
}

func DefaultConfig() Config {
	return Config{
		ListenTimeout: 2 * time.Second,
		ErrorBackoff:  2 * time.Second,
		CloseTimeout:  5 * time.Second,
		Segment:       segment.DefaultConfig(),
		Record: audio.StreamConfig{
			SampleRate: audio.RecordSampleRate,
			FrameSize:  audio.RecordChunk,
		},
	}
}

// Listener yields utterances from a live capture.
type Listener interface {
	Listen(timeout time.Duration) (segment.Utterance, error)
	SetAbort(fn func() bool)
	Close()
}

// Runner is the recorder goroutine body.
type Runner interface {
	Run() error
}

type (
	ListenerFactory func(device audio.DeviceDescriptor) (Listener, error)
	RecorderFactory func(device audio.DeviceDescriptor, path string, stop *atomic.Bool, hooks audio.RecorderHooks) Runner
)

type Deps struct {
	Audio       audio.Context
	Transcriber transcriber.Transcriber
	Translator  *translator.Service
	Store       *session.Store
	Sink        EventSink

	// Optional.
	Now         func() time.Time
	NewListener ListenerFactory
	NewRecorder RecorderFactory
	Cue         func(start bool)
	Alert       func() // a run hit an error the user should notice
}

// Controller owns the session lifecycle. OnStart and OnStop are safe to
// call from any goroutine; each run gets its own state object so a run that
// is still winding down never sees the next run's flag.
type Controller struct {
	deps    Deps
	cfg     Config
	catalog *audio.Catalog
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	state    State
	run      *run
	latest   *run // most recently started; only it may write to the display
	lastDone chan struct{}
}

func New(deps Deps, cfg Config) *Controller {
	d := DefaultConfig()
	if cfg.ListenTimeout <= 0 {
		cfg.ListenTimeout = d.ListenTimeout
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = d.ErrorBackoff
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = d.CloseTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	c := &Controller{deps: deps, cfg: cfg, catalog: audio.NewCatalog(deps.Audio)}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	if c.deps.NewListener == nil {
		c.deps.NewListener = func(dev audio.DeviceDescriptor) (Listener, error) {
			return segment.Open(deps.Audio, dev, cfg.Segment)
		}
	}
	if c.deps.NewRecorder == nil {
		c.deps.NewRecorder = func(dev audio.DeviceDescriptor, path string, stop *atomic.Bool, hooks audio.RecorderHooks) Runner {
			return audio.NewRecorder(deps.Audio, dev, path, stop, cfg.Record, hooks)
		}
	}
	return c
}

func (c *Controller) Catalog() *audio.Catalog { return c.catalog }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the active session, or nil when idle.
func (c *Controller) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return nil
	}
	return c.run.session
}

func (c *Controller) setState(s State) {
	c.state = s
	c.deps.Sink.State(s)
}

// run is the state of one start-to-stop cycle, shared by its workers.
type run struct {
	id      string
	session *session.Session
	device  audio.DeviceDescriptor
	devErr  error
	size    transcriber.ModelSize
	metrics *metrics.Session
	sink    EventSink

	stop      atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	stoppedAt time.Time

	statusMu sync.Mutex
	wg       sync.WaitGroup
	done     chan struct{}
}

func (r *run) stopped() bool { return r.stop.Load() }

// status publishes unless the run was already stopped, so a late worker
// never overwrites "Stopped".
func (r *run) status(text string) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	if !r.stop.Load() {
		r.sink.Status(text)
	}
}

func (r *run) requestStop(at time.Time, final string) {
	r.stopOnce.Do(func() {
		r.statusMu.Lock()
		r.stoppedAt = at
		r.stop.Store(true)
		if final != "" {
			r.sink.Status(final)
		}
		r.statusMu.Unlock()
		close(r.stopCh)
	})
}

// sleep waits d or until the run is stopped; it reports whether the run is
// still live.
func (r *run) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return !r.stopped()
	case <-r.stopCh:
		return false
	}
}

// OnStart begins a session on the named device. It returns false without
// side effects if a session is already running.
func (c *Controller) OnStart(deviceName string, size transcriber.ModelSize) bool {
	if !c.start(deviceName, size) {
		return false
	}
	c.cue(true)
	return true
}

// cue plays the start or stop sound. It runs outside c.mu since the first
// call may block while the audio backend connects.
func (c *Controller) cue(start bool) {
	if c.deps.Cue != nil {
		c.deps.Cue(start)
	}
}

func (c *Controller) start(deviceName string, size transcriber.ModelSize) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		log.Warn("start ignored: session already active")
		return false
	}
	if size == "" {
		size = transcriber.DefaultModel
	}

	started := c.deps.Now()
	sess, err := c.deps.Store.Create(started)
	if err != nil {
		metrics.Error("session")
		c.deps.Sink.Status("Error: " + err.Error())
		return false
	}

	r := &run{
		id:      uuid.NewString(),
		session: sess,
		size:    size,
		sink:    c.deps.Sink,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		metrics: metrics.StartSession(sess.ID),
	}
	r.device, r.devErr = c.catalog.Resolve(deviceName)

	c.deps.Sink.ButtonLabel(LabelStop)
	c.deps.Sink.Line(StartBanner, true)
	c.deps.Sink.Status(StatusLoading)
	c.run = r
	c.latest = r
	c.lastDone = r.done
	c.setState(Recording)

	log.SessionStart(sess.ID, deviceName, string(size), c.deps.Transcriber.Name())
	log.Info(fmt.Sprintf("run %s dir=%s", r.id, sess.Dir))

	r.wg.Add(2)
	go c.recordLoop(r)
	go c.transcribeLoop(r)
	go c.finalize(r)
	return true
}

// OnStop raises the run's stop flag and returns without waiting for the
// workers. The transcript end line is written once both have exited.
func (c *Controller) OnStop() bool {
	if !c.stop() {
		return false
	}
	c.cue(false)
	return true
}

func (c *Controller) stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Recording {
		return false
	}
	r := c.run
	c.setState(Stopping)
	r.requestStop(c.deps.Now(), StatusStopped)
	c.deps.Sink.ButtonLabel(LabelStart)
	c.run = nil
	c.setState(Idle)
	return true
}

// showLine appends a transcript line to the display unless a newer session
// has started and cleared it. A stopped run's late line still shows while
// its session is the one on screen.
func (c *Controller) showLine(r *run, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest != r {
		return false
	}
	r.sink.Line(text, false)
	return true
}

// Toggle is the single-button form of OnStart/OnStop.
func (c *Controller) Toggle(deviceName string, size transcriber.ModelSize) {
	if c.State() == Recording {
		c.OnStop()
		return
	}
	c.OnStart(deviceName, size)
}

// Close stops any active session and waits up to CloseTimeout for it to
// finish writing. In-flight backend calls are cancelled if the wait runs out.
func (c *Controller) Close() error {
	c.OnStop()
	c.mu.Lock()
	done := c.lastDone
	c.mu.Unlock()
	defer c.cancel()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(c.cfg.CloseTimeout):
		log.Warn("close: session still finishing, abandoning")
		return errors.New("timed out waiting for session to finish")
	}
}

// Wait blocks until the most recent run has been finalized.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.lastDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Controller) finalize(r *run) {
	defer close(r.done)
	r.wg.Wait()
	<-r.stopCh
	if err := c.deps.Store.Finalize(r.session, r.stoppedAt); err != nil {
		metrics.Error("session")
	}
	r.metrics.End()
	log.SessionEnd(r.session.ID, r.session.Lines(), r.stoppedAt.Sub(r.session.StartedAt))
}

func (c *Controller) alert() {
	if c.deps.Alert != nil {
		c.deps.Alert()
	}
}

func (c *Controller) recordLoop(r *run) {
	defer r.wg.Done()
	if r.devErr != nil {
		log.Errorf("recorder: %v", r.devErr)
		return
	}
	rec := c.deps.NewRecorder(r.device, r.session.AudioPath, &r.stop, audio.RecorderHooks{
		Status:  r.status,
		Frame:   metrics.RecordedFrame,
		Dropped: metrics.DroppedFrame,
	})
	if err := rec.Run(); err != nil {
		metrics.Error("recorder")
	}
}

func (c *Controller) loadModels(r *run) bool {
	for attempt := 0; !r.stopped(); attempt++ {
		r.status(fmt.Sprintf("Loading model (%s)...", r.size))
		err := c.deps.Transcriber.Load(c.ctx, r.size)
		if err == nil {
			err = c.deps.Translator.Load(c.ctx)
		}
		if err == nil {
			return true
		}
		log.Errorf("model load: %v", err)
		metrics.Error("model")
		r.status("Error: " + err.Error())
		if attempt == 0 {
			c.alert()
		}
		if !r.sleep(c.cfg.ErrorBackoff) {
			return false
		}
	}
	return false
}

func (c *Controller) transcribeLoop(r *run) {
	defer r.wg.Done()

	if !c.loadModels(r) {
		return
	}

	if r.devErr != nil {
		c.alert()
		r.status(StatusNoDevice)
		return
	}
	lst, err := c.deps.NewListener(r.device)
	if err != nil {
		log.Errorf("open listener on %q: %v", r.device.Name, err)
		metrics.Error("device")
		c.alert()
		if errors.Is(err, audio.ErrDeviceNotFound) {
			r.status(StatusNoDevice)
		} else {
			r.status("Error: " + err.Error())
		}
		return
	}
	defer lst.Close()
	lst.SetAbort(r.stopped)
	if seg, ok := lst.(*segment.Segmenter); ok {
		log.Info(fmt.Sprintf("run %s listening detector=%s", r.id, seg.Detector()))
		defer func() {
			total, speech := seg.Stats()
			log.Info(fmt.Sprintf("run %s listener closed frames=%d voiced=%d", r.id, total, speech))
		}()
	}

	r.status(StatusTranscribing)
	for !r.stopped() {
		err := c.cycle(r, lst)
		switch {
		case err == nil:
		case errors.Is(err, segment.ErrTimeout), errors.Is(err, segment.ErrAborted):
		default:
			log.Errorf("cycle: %v", err)
			metrics.Error(component(err))
			r.status("Error: " + err.Error())
			if !r.sleep(c.cfg.ErrorBackoff) {
				return
			}
			r.status(StatusTranscribing)
		}
	}
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func component(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return "pipeline"
}

// cycle runs one listen, transcribe, translate, display and persist pass.
func (c *Controller) cycle(r *run, lst Listener) error {
	u, err := lst.Listen(c.cfg.ListenTimeout)
	if err != nil {
		if errors.Is(err, segment.ErrTimeout) || errors.Is(err, segment.ErrAborted) {
			return err
		}
		return &stageError{"listen", err}
	}
	r.metrics.Utterance(u.Duration)

	t0 := time.Now()
	res, err := c.deps.Transcriber.Transcribe(c.ctx, u.Waveform, r.size)
	transcribeDur := time.Since(t0)
	if err != nil {
		r.metrics.Transcription(transcribeDur, "error")
		return &stageError{"transcribe", err}
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		r.metrics.Transcription(transcribeDur, "empty")
		return nil
	}
	r.metrics.Transcription(transcribeDur, "ok")

	t1 := time.Now()
	spanish, ok := c.deps.Translator.Translate(c.ctx, text)
	translateDur := time.Since(t1)
	r.metrics.Translation(translateDur, ok)

	line := session.TranscriptLine{Time: c.deps.Now(), Source: text, Target: spanish}
	if !c.showLine(r, line.Display()) {
		log.Info(fmt.Sprintf("run %s: line kept out of newer session display", r.id))
	}
	if err := c.deps.Store.AppendLine(r.session, line); err != nil {
		metrics.Error("session")
	} else {
		r.metrics.Line()
	}
	log.TranscriptionText(text, spanish)

	cm := log.Cycle{
		Session:      r.session.ID,
		AudioS:       u.Duration.Seconds(),
		TranscribeMs: float64(transcribeDur.Milliseconds()),
		TranslateMs:  float64(translateDur.Milliseconds()),
		UploadKB:     float64(res.Upload.Bytes) / 1024,
		Format:       res.Upload.Format,
		Model:        res.Model,
	}
	if m := res.Metrics; m != nil {
		cm.ConnReused = m.ConnReused
		cm.TLSProto = m.TLSProtocol
		cm.TTFBMs = float64(m.TTFB.Milliseconds())
	}
	log.CycleMetrics(cm)
	return nil
}
