package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "habla_sessions_total",
		Help: "Recording sessions started",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "habla_active_sessions",
		Help: "Sessions currently recording (0 or 1)",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "habla_session_duration_seconds",
		Help:    "Wall time from start to stop of a session",
		Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600},
	})

	utterances = promauto.NewCounter(prometheus.CounterOpts{
		Name: "habla_utterances_total",
		Help: "Utterances produced by the segmenter",
	})

	utteranceSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "habla_utterance_seconds",
		Help:    "Length of segmented utterances",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
	})

	transcriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habla_transcriptions_total",
		Help: "Transcription calls by outcome",
	}, []string{"status"}) // ok, empty, error

	transcriptionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "habla_transcription_latency_seconds",
		Help:    "Transcription call latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	translations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habla_translations_total",
		Help: "Translation calls by outcome",
	}, []string{"status"})

	translationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "habla_translation_latency_seconds",
		Help:    "Translation call latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	transcriptLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "habla_transcript_lines_total",
		Help: "Lines appended to session transcripts",
	})

	audioFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habla_audio_frames_total",
		Help: "Audio frames read from the capture device",
	}, []string{"stage"}) // recorded, dropped

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habla_errors_total",
		Help: "Errors by pipeline component",
	}, []string{"component"})
)

// Session tracks the metrics of one recording run.
type Session struct {
	id    string
	start time.Time
}

func StartSession(id string) *Session {
	sessionsTotal.Inc()
	activeSessions.Inc()
	return &Session{id: id, start: time.Now()}
}

func (s *Session) End() {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(s.start).Seconds())
}

func (s *Session) ID() string { return s.id }

func (s *Session) Utterance(d time.Duration) {
	utterances.Inc()
	utteranceSeconds.Observe(d.Seconds())
}

func (s *Session) Transcription(d time.Duration, status string) {
	transcriptionLatency.Observe(d.Seconds())
	transcriptions.WithLabelValues(status).Inc()
}

func (s *Session) Translation(d time.Duration, ok bool) {
	translationLatency.Observe(d.Seconds())
	status := "ok"
	if !ok {
		status = "error"
	}
	translations.WithLabelValues(status).Inc()
}

func (s *Session) Line() { transcriptLines.Inc() }

func RecordedFrame() { audioFrames.WithLabelValues("recorded").Inc() }

func DroppedFrame() { audioFrames.WithLabelValues("dropped").Inc() }

func Error(component string) { errorsTotal.WithLabelValues(component).Inc() }

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
