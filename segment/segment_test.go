package segment

import (
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"habla/audio"
)

const rate = 16000

type sliceSource struct {
	pcm   []int16
	chunk int
	pos   int
}

func (s *sliceSource) ReadFrame() (audio.Frame, error) {
	if s.pos >= len(s.pcm) {
		return nil, io.EOF
	}
	end := min(s.pos+s.chunk, len(s.pcm))
	f := audio.Frame(s.pcm[s.pos:end])
	s.pos = end
	return f, nil
}

func tone(ms int) []int16 {
	n := rate * ms / 1000
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	return out
}

func silence(ms int) []int16 { return make([]int16, rate*ms/1000) }

func concat(parts ...[]int16) []int16 {
	var out []int16
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func energyConfig() Config {
	cfg := DefaultConfig()
	cfg.Detector = "energy"
	return cfg
}

func newTestSegmenter(t *testing.T, pcm []int16, chunk int, cfg Config) *Segmenter {
	t.Helper()
	s, err := New(&sliceSource{pcm: pcm, chunk: chunk}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestListenTimeoutOnSilence(t *testing.T) {
	s := newTestSegmenter(t, silence(5000), 320, energyConfig())
	_, err := s.Listen(2 * time.Second)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	total, speech := s.Stats()
	if total != 100 || speech != 0 {
		t.Errorf("stats = %d/%d, want 100/0", total, speech)
	}
}

func TestListenCapturesPhrase(t *testing.T) {
	pcm := concat(silence(1000), tone(1000), silence(1000))
	s := newTestSegmenter(t, pcm, 1024, energyConfig())

	u, err := s.Listen(2 * time.Second)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	// 300ms pre-roll (the last 60ms of it voiced) + 940ms speech + 800ms pause
	want := 2040 * time.Millisecond
	if d := u.Duration - want; d < -40*time.Millisecond || d > 40*time.Millisecond {
		t.Errorf("duration = %v, want ~%v", u.Duration, want)
	}
	if u.SampleRate != rate {
		t.Errorf("sample rate = %d", u.SampleRate)
	}
	for _, v := range u.Samples {
		if v < -1 || v > 1 {
			t.Fatalf("sample %v not normalized", v)
		}
	}
}

func TestListenTimeoutThenPhrase(t *testing.T) {
	pcm := concat(silence(3000), tone(500), silence(1000))
	s := newTestSegmenter(t, pcm, 320, energyConfig())

	if _, err := s.Listen(2 * time.Second); !errors.Is(err, ErrTimeout) {
		t.Fatalf("first Listen err = %v, want ErrTimeout", err)
	}
	u, err := s.Listen(2 * time.Second)
	if err != nil {
		t.Fatalf("second Listen: %v", err)
	}
	if u.Duration < 500*time.Millisecond {
		t.Errorf("duration = %v, too short", u.Duration)
	}
}

func TestListenMaxPhrase(t *testing.T) {
	cfg := energyConfig()
	cfg.MaxPhrase = time.Second
	s := newTestSegmenter(t, tone(5000), 320, cfg)

	u, err := s.Listen(0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if u.Duration > time.Second+20*time.Millisecond {
		t.Errorf("duration = %v, want <= 1s", u.Duration)
	}
	if _, err := s.Listen(0); err != nil {
		t.Errorf("continuation Listen: %v", err)
	}
}

func TestListenDebounce(t *testing.T) {
	// Two voiced frames are not enough to start a phrase.
	pcm := concat(silence(500), tone(40), silence(2000))
	s := newTestSegmenter(t, pcm, 320, energyConfig())
	if _, err := s.Listen(2 * time.Second); !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestListenAbort(t *testing.T) {
	s := newTestSegmenter(t, silence(5000), 320, energyConfig())
	calls := 0
	s.SetAbort(func() bool {
		calls++
		return calls > 10
	})
	if _, err := s.Listen(0); !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
}

func TestListenSourceError(t *testing.T) {
	s := newTestSegmenter(t, silence(100), 320, energyConfig())
	_, err := s.Listen(0)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want wrapped io.EOF", err)
	}
}

func TestWebRTCSilence(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestSegmenter(t, silence(2500), 100, cfg)
	if _, err := s.Listen(2 * time.Second); !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if _, speech := s.Stats(); speech != 0 {
		t.Errorf("speech frames = %d on silence", speech)
	}
}

func TestUnknownDetector(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detector = "magic"
	if _, err := New(&sliceSource{}, cfg); err == nil {
		t.Fatal("expected error")
	}
}

func TestRMS(t *testing.T) {
	if RMS(nil) != 0 {
		t.Error("RMS(nil) != 0")
	}
	if got := RMS([]int16{3, -3, 3, -3}); got != 3 {
		t.Errorf("RMS = %v, want 3", got)
	}
}

func TestDetectorName(t *testing.T) {
	for _, name := range []string{"webrtc", "energy"} {
		cfg := DefaultConfig()
		cfg.Detector = name
		s := newTestSegmenter(t, nil, 100, cfg)
		if got := s.Detector(); got != name {
			t.Errorf("Detector() = %q, want %q", got, name)
		}
	}
}
