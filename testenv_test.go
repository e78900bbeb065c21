package main

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"habla/audio"
	"habla/config"
	"habla/pipeline"
	"habla/session"
	"habla/transcriber"
	"habla/translator"
)

func newTestApp(t *testing.T, texts ...string) (*app, *audio.FakeContext, *pipeline.ViewSink) {
	t.Helper()
	const rate = 16000
	var pcm []int16
	pcm = append(pcm, make([]int16, rate/2)...)
	for i := 0; i < rate*6/10; i++ {
		pcm = append(pcm, int16(9000*math.Sin(2*math.Pi*300*float64(i)/rate)))
	}
	pcm = append(pcm, make([]int16, rate)...)

	fake := audio.NewFakeContext(pcm, rate, false)
	fake.SetSpeed(20)
	sink := pipeline.NewViewSink()
	cfg := config.Default()
	cfg.Segment.Detector = "energy"

	a := &app{cfg: cfg, audio: fake, store: session.NewStore(t.TempDir()), model: transcriber.ModelBase}
	pcfg := pipeline.DefaultConfig()
	pcfg.Segment = cfg.SegmentConfig()
	a.ctrl = pipeline.New(pipeline.Deps{
		Audio:       fake,
		Transcriber: transcriber.NewFake(texts...),
		Translator:  translator.NewService(translator.NewFake()),
		Store:       a.store,
		Sink:        sink,
	}, pcfg)
	return a, fake, sink
}

func TestRunTestModeScript(t *testing.T) {
	a, fake, sink := newTestApp(t, "hello")
	var out bytes.Buffer
	script := "START\nWAIT_LINES 1\nSTOP\nWAIT\nQUIT\n"

	if code := runTestMode(a, fake, sink, strings.NewReader(script), &out); code != 0 {
		t.Fatalf("exit code %d\n%s", code, out.String())
	}
	got := out.String()
	for _, want := range []string{pipeline.StartBanner, "English: hello", "Spanish: hola", "status: Stopped"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	ids, err := a.store.List()
	if err != nil || len(ids) != 1 {
		t.Fatalf("sessions = %v, %v", ids, err)
	}
	data, err := os.ReadFile(filepath.Join(a.store.Root(), ids[0], session.TranscriptFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Session ended at") {
		t.Errorf("transcript not finalized:\n%s", data)
	}
}

func TestRunTestModeIgnoredCommands(t *testing.T) {
	a, fake, sink := newTestApp(t)
	var out bytes.Buffer
	script := "STOP\nBOGUS\nWAIT_LINES x\nSLEEP 5\n"
	if code := runTestMode(a, fake, sink, strings.NewReader(script), &out); code != 0 {
		t.Fatalf("exit code %d", code)
	}
	for _, want := range []string{"! stop ignored", "! unknown command", "! bad count"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  []string
	}{
		{"", 10, []string{""}},
		{"short", 10, []string{"short"}},
		{"hola que tal amigo", 9, []string{"hola que", "tal amigo"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"canción está aquí", 7, []string{"canción", "está", "aquí"}},
		{"ññññña", 2, []string{"ññ", "ññ", "ña"}},
		{"Spanish: buenas noches", 12, []string{"Spanish:", "buenas", "noches"}},
	}
	for _, tt := range tests {
		got := wrapText(tt.text, tt.width)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
		for _, row := range got {
			if !utf8.ValidString(row) {
				t.Errorf("wrapText(%q, %d) cut a rune: %q", tt.text, tt.width, row)
			}
		}
	}
}

func TestRenderTranscriptKeepsTail(t *testing.T) {
	text := "a\nb\nc\nd\n"
	got := renderTranscript(text, 20, 2)
	if !strings.Contains(got, "c") || !strings.Contains(got, "d") || strings.Contains(got, "a") {
		t.Errorf("renderTranscript = %q", got)
	}
}

func TestTUIModelSelectors(t *testing.T) {
	a, _, _ := newTestApp(t)
	a.devices = []string{"One", "Two"}
	a.cfg.Device = "Two"
	m := newTUIModel(a)
	if m.deviceName() != "Two" || m.modelSize() != transcriber.ModelBase {
		t.Fatalf("initial selection %q %q", m.deviceName(), m.modelSize())
	}
	next, _ := m.Update(keyRunes("d"))
	next, _ = next.Update(keyRunes("m"))
	m = next.(tuiModel)
	if m.deviceName() != "One" || m.modelSize() != transcriber.ModelSmall {
		t.Errorf("after keys %q %q", m.deviceName(), m.modelSize())
	}

	start := time.Now()
	next, cmd := m.Update(keyRunes("q"))
	if cmd == nil || !next.(tuiModel).closing {
		t.Fatal("q should start closing")
	}
	if msg := cmd(); msg.(closedMsg).err != nil {
		t.Errorf("close: %v", msg.(closedMsg).err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("close took too long")
	}
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}
