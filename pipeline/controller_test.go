package pipeline

import (
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"habla/audio"
	"habla/encoder"
	"habla/segment"
	"habla/session"
	"habla/transcriber"
	"habla/translator"
)

type scriptListener struct {
	mu     sync.Mutex
	script []error // nil entries yield an utterance
	abort  func() bool
	closed atomic.Bool
}

func (l *scriptListener) Listen(time.Duration) (segment.Utterance, error) {
	l.mu.Lock()
	abort := l.abort
	l.mu.Unlock()
	if abort != nil && abort() {
		return segment.Utterance{}, segment.ErrAborted
	}
	l.mu.Lock()
	if len(l.script) == 0 {
		l.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		return segment.Utterance{}, segment.ErrTimeout
	}
	err := l.script[0]
	l.script = l.script[1:]
	l.mu.Unlock()
	if err != nil {
		return segment.Utterance{}, err
	}
	wf := audio.Waveform{Samples: make([]float32, 1600), SampleRate: 16000}
	return segment.Utterance{Waveform: wf, Start: time.Now(), Duration: 100 * time.Millisecond}, nil
}

func (l *scriptListener) SetAbort(fn func() bool) {
	l.mu.Lock()
	l.abort = fn
	l.mu.Unlock()
}

func (l *scriptListener) Close() { l.closed.Store(true) }

type idleRecorder struct {
	stop *atomic.Bool
	runs *atomic.Int32
}

func (r idleRecorder) Run() error {
	r.runs.Add(1)
	for !r.stop.Load() {
		time.Sleep(time.Millisecond)
	}
	return nil
}

type harness struct {
	ctrl     *Controller
	sink     *ViewSink
	store    *session.Store
	tr       *transcriber.Fake
	tl       *translator.Fake
	listener *scriptListener
	recRuns  atomic.Int32
	alerts   atomic.Int32
	onCue    func(start bool)
}

func newHarness(t *testing.T, texts []string, script []error) *harness {
	t.Helper()
	h := &harness{
		sink:     NewViewSink(),
		store:    session.NewStore(t.TempDir()),
		tr:       transcriber.NewFake(texts...),
		tl:       translator.NewFake(),
		listener: &scriptListener{script: script},
	}
	fc := audio.NewFakeContext(nil, 16000, false)
	h.ctrl = New(Deps{
		Audio:       fc,
		Transcriber: h.tr,
		Translator:  translator.NewService(h.tl),
		Store:       h.store,
		Sink:        h.sink,
		NewListener: func(audio.DeviceDescriptor) (Listener, error) { return h.listener, nil },
		NewRecorder: func(_ audio.DeviceDescriptor, _ string, stop *atomic.Bool, _ audio.RecorderHooks) Runner {
			return idleRecorder{stop: stop, runs: &h.recRuns}
		},
		Alert: func() { h.alerts.Add(1) },
		Cue: func(start bool) {
			if h.onCue != nil {
				h.onCue(start)
			}
		},
	}, Config{ListenTimeout: 10 * time.Millisecond, ErrorBackoff: 10 * time.Millisecond, CloseTimeout: 2 * time.Second})
	t.Cleanup(func() { h.ctrl.Close() })
	return h
}

func (h *harness) waitLines(t *testing.T, n int) {
	t.Helper()
	if !h.sink.WaitFor(3*time.Second, func(v View) bool { return v.Lines >= n }) {
		t.Fatalf("timed out waiting for %d lines, view: %+v", n, h.sink.Snapshot())
	}
}

func transcript(t *testing.T, s *session.Session) string {
	t.Helper()
	data, err := os.ReadFile(s.TranscriptPath)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestStartStopRoundTrip(t *testing.T) {
	h := newHarness(t, nil, nil)
	before := h.sink.Snapshot().Button

	if !h.ctrl.OnStart(audio.DefaultDeviceName, transcriber.ModelBase) {
		t.Fatal("OnStart returned false")
	}
	if h.ctrl.OnStart(audio.DefaultDeviceName, transcriber.ModelBase) {
		t.Error("second OnStart should be a no-op")
	}
	if h.ctrl.State() != Recording {
		t.Errorf("state = %v", h.ctrl.State())
	}
	v := h.sink.Snapshot()
	if v.Button != LabelStop || !strings.HasPrefix(v.Text, StartBanner) {
		t.Errorf("view after start = %+v", v)
	}

	sess := h.ctrl.Session()
	if !h.sink.WaitFor(3*time.Second, func(v View) bool { return v.Status == StatusTranscribing }) {
		t.Fatalf("listener never started: %+v", h.sink.Snapshot())
	}
	if !h.ctrl.OnStop() {
		t.Fatal("OnStop returned false")
	}
	if h.ctrl.OnStop() {
		t.Error("second OnStop should be a no-op")
	}
	h.ctrl.Wait()

	v = h.sink.Snapshot()
	if v.Button != before {
		t.Errorf("button = %q, want %q", v.Button, before)
	}
	if v.Status != StatusStopped || v.State != Idle {
		t.Errorf("view after stop = %+v", v)
	}
	if got := h.recRuns.Load(); got != 1 {
		t.Errorf("recorder runs = %d, want 1", got)
	}
	if !strings.Contains(transcript(t, sess), "\nSession ended at ") {
		t.Error("transcript missing end line")
	}
	if !h.listener.closed.Load() {
		t.Error("listener not closed")
	}
}

func TestEmptyTextProducesNoLine(t *testing.T) {
	h := newHarness(t, []string{"hello", "", "goodbye"}, []error{nil, nil, nil})
	h.ctrl.OnStart(audio.DefaultDeviceName, transcriber.ModelBase)
	sess := h.ctrl.Session()
	h.waitLines(t, 2)
	h.ctrl.OnStop()
	h.ctrl.Wait()

	got := transcript(t, sess)
	if n := strings.Count(got, "English: "); n != 2 {
		t.Fatalf("entries = %d, want 2:\n%s", n, got)
	}
	hello := strings.Index(got, "English: hello\nSpanish: hola\n")
	bye := strings.Index(got, "English: goodbye\n")
	if hello < 0 || bye < 0 || hello > bye {
		t.Errorf("entries out of order or missing:\n%s", got)
	}
	if h.sink.Snapshot().Lines != 2 {
		t.Errorf("display lines = %d", h.sink.Snapshot().Lines)
	}
	if strings.LastIndex(got, "Session ended at") < bye {
		t.Errorf("end line not last:\n%s", got)
	}
}

func TestTranslatorFailureMarker(t *testing.T) {
	h := newHarness(t, []string{"hello", "thank you"}, []error{nil, nil})
	h.tl.Fail(errors.New("backend down"))
	h.ctrl.OnStart(audio.DefaultDeviceName, transcriber.ModelSmall)
	sess := h.ctrl.Session()
	h.waitLines(t, 2)
	h.ctrl.OnStop()
	h.ctrl.Wait()

	got := transcript(t, sess)
	if !strings.Contains(got, "English: hello\nSpanish: Translation error: backend down\n") {
		t.Errorf("missing error marker:\n%s", got)
	}
	if !strings.Contains(got, "English: thank you\nSpanish: gracias\n") {
		t.Errorf("loop did not continue:\n%s", got)
	}
}

func TestCycleErrorBacksOffAndContinues(t *testing.T) {
	h := newHarness(t, []string{"hello"}, []error{errors.New("device hiccup"), nil})
	h.ctrl.OnStart(audio.DefaultDeviceName, transcriber.ModelBase)

	seenError := h.sink.WaitFor(3*time.Second, func(v View) bool {
		return v.Status == "Error: device hiccup"
	})
	if !seenError {
		t.Fatalf("error status never shown: %+v", h.sink.Snapshot())
	}
	h.waitLines(t, 1)
	if !h.sink.WaitFor(time.Second, func(v View) bool { return v.Status == StatusTranscribing }) {
		t.Errorf("status did not recover: %q", h.sink.Snapshot().Status)
	}
}

func TestModelLoadRetried(t *testing.T) {
	h := newHarness(t, []string{"hello"}, []error{nil})
	h.tr.FailLoad(errors.New("weights missing"))
	h.ctrl.OnStart(audio.DefaultDeviceName, transcriber.ModelLarge)
	h.waitLines(t, 1)
	loads := h.tr.Loads()
	if len(loads) != 1 || loads[0] != transcriber.ModelLarge {
		t.Errorf("loads = %v", loads)
	}
}

func TestDeviceNotFound(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.OnStart("No Such Mic", transcriber.ModelBase)
	if !h.sink.WaitFor(3*time.Second, func(v View) bool { return v.Status == StatusNoDevice }) {
		t.Fatalf("status = %q", h.sink.Snapshot().Status)
	}
	if got := h.recRuns.Load(); got != 0 {
		t.Errorf("recorder ran %d times for a missing device", got)
	}
	if got := h.alerts.Load(); got != 1 {
		t.Errorf("alerts = %d, want 1", got)
	}
	if h.ctrl.State() != Recording {
		t.Errorf("state = %v, want recording until stopped", h.ctrl.State())
	}
	h.ctrl.OnStop()
	h.ctrl.Wait()
}

func TestStatusNotOverwrittenAfterStop(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.tr.SetDelay(50 * time.Millisecond)
	h.ctrl.OnStart(audio.DefaultDeviceName, transcriber.ModelBase)
	h.ctrl.OnStop()
	h.ctrl.Wait()
	if s := h.sink.Snapshot().Status; s != StatusStopped {
		t.Errorf("status = %q, want %q", s, StatusStopped)
	}
}

func TestRestartCreatesNewSession(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.OnStart(audio.DefaultDeviceName, transcriber.ModelBase)
	first := h.ctrl.Session()
	h.ctrl.OnStop()
	h.ctrl.Wait()
	h.ctrl.OnStart(audio.DefaultDeviceName, transcriber.ModelBase)
	second := h.ctrl.Session()
	h.ctrl.OnStop()
	h.ctrl.Wait()
	if first == nil || second == nil || first.Dir == second.Dir {
		t.Fatalf("sessions share a directory: %v %v", first, second)
	}
	if h.sink.Snapshot().Text != StartBanner {
		t.Errorf("display not cleared on restart: %q", h.sink.Snapshot().Text)
	}
}

func TestStopBeforeListenerOpens(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.OnStart(audio.DefaultDeviceName, transcriber.ModelBase)
	sess := h.ctrl.Session()
	h.ctrl.OnStop()
	h.ctrl.Wait()
	if !strings.Contains(transcript(t, sess), "\nSession ended at ") {
		t.Error("transcript missing end line")
	}
	if h.ctrl.State() != Idle {
		t.Errorf("state = %v", h.ctrl.State())
	}
}

func waitEndLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(string(data), "Session ended at") || time.Now().After(deadline) {
			return string(data)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLateLineStaysOutOfNextSession(t *testing.T) {
	h := newHarness(t, []string{"stale words"}, []error{nil})
	h.tr.SetDelay(200 * time.Millisecond)
	h.ctrl.OnStart(audio.DefaultDeviceName, transcriber.ModelBase)
	first := h.ctrl.Session()

	deadline := time.Now().Add(3 * time.Second)
	for h.tr.Calls() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("transcriber never called")
		}
		time.Sleep(time.Millisecond)
	}
	h.ctrl.OnStop()
	h.ctrl.OnStart(audio.DefaultDeviceName, transcriber.ModelBase)
	second := h.ctrl.Session()

	got := waitEndLine(t, first.TranscriptPath)
	if !strings.Contains(got, "English: stale words\n") {
		t.Errorf("stopped session lost its line:\n%s", got)
	}
	if v := h.sink.Snapshot(); v.Text != StartBanner || v.Lines != 0 {
		t.Errorf("line from %s shown in %s display: %q", first.ID, second.ID, v.Text)
	}
	h.ctrl.OnStop()
	h.ctrl.Wait()
	if strings.Contains(transcript(t, second), "stale words") {
		t.Error("line persisted to the wrong session")
	}
}

func TestLateLineShownWhileSessionOnScreen(t *testing.T) {
	h := newHarness(t, []string{"late"}, []error{nil})
	h.tr.SetDelay(100 * time.Millisecond)
	h.ctrl.OnStart(audio.DefaultDeviceName, transcriber.ModelBase)
	for h.tr.Calls() == 0 {
		time.Sleep(time.Millisecond)
	}
	h.ctrl.OnStop()
	h.ctrl.Wait()
	if v := h.sink.Snapshot(); v.Lines != 1 || !strings.Contains(v.Text, "English: late\n") {
		t.Errorf("view = %+v", v)
	}
}

func TestCueRunsOutsideControllerLock(t *testing.T) {
	h := newHarness(t, nil, nil)
	var states []State
	h.onCue = func(bool) { states = append(states, h.ctrl.State()) }

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ctrl.OnStart(audio.DefaultDeviceName, transcriber.ModelBase)
		h.ctrl.OnStop()
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("cue blocked on the controller lock")
	}
	if len(states) != 2 || states[0] != Recording || states[1] != Idle {
		t.Errorf("states seen by cue = %v", states)
	}
}

func TestConcurrentClicks(t *testing.T) {
	store := session.NewStore(t.TempDir())
	var (
		mu        sync.Mutex
		recorders = map[string]int{}
		runs      atomic.Int32
	)
	ctrl := New(Deps{
		Audio:       audio.NewFakeContext(nil, 16000, false),
		Transcriber: transcriber.NewFake(),
		Translator:  translator.NewService(translator.NewFake()),
		Store:       store,
		Sink:        NewViewSink(),
		NewListener: func(audio.DeviceDescriptor) (Listener, error) { return &scriptListener{}, nil },
		NewRecorder: func(_ audio.DeviceDescriptor, path string, stop *atomic.Bool, _ audio.RecorderHooks) Runner {
			mu.Lock()
			recorders[path]++
			mu.Unlock()
			return idleRecorder{stop: stop, runs: &runs}
		},
	}, Config{ListenTimeout: time.Millisecond, ErrorBackoff: time.Millisecond, CloseTimeout: 5 * time.Second})

	var wg sync.WaitGroup
	for g := range 4 {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, 7))
			for range 40 {
				switch rng.IntN(3) {
				case 0:
					ctrl.Toggle(audio.DefaultDeviceName, transcriber.ModelBase)
				case 1:
					ctrl.OnStart(audio.DefaultDeviceName, transcriber.ModelBase)
				default:
					ctrl.OnStop()
				}
				if rng.IntN(4) == 0 {
					time.Sleep(time.Millisecond)
				}
			}
		}(uint64(g))
	}
	wg.Wait()
	if err := ctrl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if ctrl.State() != Idle {
		t.Errorf("state = %v after close", ctrl.State())
	}

	ids, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) == 0 {
		t.Fatal("no sessions created")
	}
	for _, id := range ids {
		got := waitEndLine(t, filepath.Join(store.Root(), id, session.TranscriptFile))
		if n := strings.Count(got, "Session ended at"); n != 1 {
			t.Errorf("session %s has %d end lines", id, n)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(recorders) != len(ids) {
		t.Errorf("%d recorders for %d sessions", len(recorders), len(ids))
	}
	for path, n := range recorders {
		if n != 1 {
			t.Errorf("%s recorded by %d recorders", path, n)
		}
	}
}

func TestCloseIdle(t *testing.T) {
	h := newHarness(t, nil, nil)
	if err := h.ctrl.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

// TestEndToEndWithFakeAudio runs the real recorder and segmenter against a
// synthetic capture of two tones separated by silence.
func TestEndToEndWithFakeAudio(t *testing.T) {
	const rate = 16000
	tone := func(ms int) []int16 {
		out := make([]int16, rate*ms/1000)
		for i := range out {
			out[i] = int16(9000 * math.Sin(2*math.Pi*300*float64(i)/rate))
		}
		return out
	}
	var pcm []int16
	pcm = append(pcm, make([]int16, rate/2)...)
	pcm = append(pcm, tone(600)...)
	pcm = append(pcm, make([]int16, rate)...)
	pcm = append(pcm, tone(600)...)
	pcm = append(pcm, make([]int16, rate)...)

	fc := audio.NewFakeContext(pcm, rate, false)
	fc.SetSpeed(20)
	sink := NewViewSink()
	store := session.NewStore(t.TempDir())
	tr := transcriber.NewFake("hello", "good night")

	cfg := DefaultConfig()
	cfg.Segment.Detector = "energy"
	cfg.ErrorBackoff = 10 * time.Millisecond
	ctrl := New(Deps{
		Audio:       fc,
		Transcriber: tr,
		Translator:  translator.NewService(translator.NewFake()),
		Store:       store,
		Sink:        sink,
	}, cfg)
	defer ctrl.Close()

	if !ctrl.OnStart("Fake Microphone", transcriber.ModelTiny) {
		t.Fatal("OnStart failed")
	}
	sess := ctrl.Session()
	if !sink.WaitFor(10*time.Second, func(v View) bool { return v.Lines >= 2 }) {
		t.Fatalf("lines never arrived: %+v", sink.Snapshot())
	}
	ctrl.OnStop()
	ctrl.Wait()

	got := transcript(t, sess)
	if !strings.Contains(got, "English: hello\nSpanish: hola\n") ||
		!strings.Contains(got, "English: good night\nSpanish: buenas noches\n") {
		t.Errorf("transcript:\n%s", got)
	}

	samples, wavRate, err := encoder.ReadWAVFile(filepath.Join(sess.Dir, session.AudioFile))
	if err != nil {
		t.Fatalf("reading session audio: %v", err)
	}
	if wavRate != audio.RecordSampleRate {
		t.Errorf("wav rate = %d", wavRate)
	}
	if len(samples) == 0 || len(samples)%audio.RecordChunk != 0 {
		t.Errorf("wav samples = %d, want a positive multiple of %d", len(samples), audio.RecordChunk)
	}
}
