package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSessionCounters(t *testing.T) {
	startedBefore := testutil.ToFloat64(sessionsTotal)
	linesBefore := testutil.ToFloat64(transcriptLines)
	emptyBefore := testutil.ToFloat64(transcriptions.WithLabelValues("empty"))

	s := StartSession("20240101_000000")
	if got := testutil.ToFloat64(activeSessions); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}
	s.Utterance(2 * time.Second)
	s.Transcription(300*time.Millisecond, "empty")
	s.Translation(50*time.Millisecond, false)
	s.Line()
	s.End()

	if got := testutil.ToFloat64(sessionsTotal) - startedBefore; got != 1 {
		t.Errorf("sessions delta = %v", got)
	}
	if got := testutil.ToFloat64(activeSessions); got != 0 {
		t.Errorf("active after end = %v", got)
	}
	if got := testutil.ToFloat64(transcriptLines) - linesBefore; got != 1 {
		t.Errorf("lines delta = %v", got)
	}
	if got := testutil.ToFloat64(transcriptions.WithLabelValues("empty")) - emptyBefore; got != 1 {
		t.Errorf("empty transcriptions delta = %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	Error("recorder")
	RecordedFrame()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"habla_errors_total", "habla_audio_frames_total"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
