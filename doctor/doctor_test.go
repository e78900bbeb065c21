package doctor

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"habla/audio"
	"habla/transcriber"
	"habla/translator"
)

func tonePCM(rate int, secs float64) []int16 {
	out := make([]int16, int(float64(rate)*secs))
	for i := range out {
		out[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	return out
}

func TestRunAllPass(t *testing.T) {
	var out bytes.Buffer
	code := Run(context.Background(), Options{
		Audio:       audio.NewFakeContext(tonePCM(16000, 1), 16000, false),
		Transcriber: transcriber.NewFake("hello"),
		Model:       transcriber.ModelTiny,
		Translator:  translator.NewService(translator.NewFake()),
		RecordFor:   200 * time.Millisecond,
		Out:         &out,
	})
	if code != 0 {
		t.Fatalf("exit code %d, output:\n%s", code, out.String())
	}
	for _, want := range []string{"Fake Microphone", "44100 Hz", "fake tiny loaded", "hello -> hola", "All checks passed!"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Options)
		want  string
	}{
		{
			name:  "missing device",
			setup: func(o *Options) { o.Device = "Nope" },
			want:  "FAIL",
		},
		{
			name: "model load",
			setup: func(o *Options) {
				f := transcriber.NewFake()
				f.FailLoad(errors.New("no weights"))
				o.Transcriber = f
			},
			want: "FAIL: no weights",
		},
		{
			name: "translator load",
			setup: func(o *Options) {
				f := translator.NewFake()
				f.SetLoadError(errors.New("pair unavailable"))
				o.Translator = translator.NewService(f)
			},
			want: "pair unavailable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			opts := Options{
				Audio:       audio.NewFakeContext(tonePCM(16000, 1), 16000, false),
				Transcriber: transcriber.NewFake(),
				Translator:  translator.NewService(translator.NewFake()),
				RecordFor:   100 * time.Millisecond,
				Out:         &out,
			}
			tt.setup(&opts)
			if code := Run(context.Background(), opts); code != 1 {
				t.Errorf("exit code %d", code)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out.String())
			}
		})
	}
}
