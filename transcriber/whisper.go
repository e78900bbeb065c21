package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Whisper speaks the OpenAI audio transcription protocol, which local
// whisper servers and several hosted providers share.
type Whisper struct {
	batch
	apiURL         string
	apiKey         string
	lang           string
	responseFormat string
	model          func(ModelSize) string
}

const defaultLocalURL = "http://localhost:8000/v1/audio/transcriptions"

func newWhisper(name string, opts Options, defaultURL string, model func(ModelSize) string) *Whisper {
	apiURL := opts.URL
	if apiURL == "" {
		apiURL = defaultURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	w := &Whisper{
		apiURL:         apiURL,
		apiKey:         opts.APIKey,
		lang:           opts.Language,
		responseFormat: "verbose_json",
		model:          model,
	}
	w.batch = batch{
		name:   name,
		format: opts.Format,
		client: NewTracedClient(timeout),
		send:   w.send,
	}
	return w
}

// NewLocal talks to a self-hosted OpenAI-compatible whisper server. It
// transcribes a short silence on Load, which makes the server load the model.
func NewLocal(opts Options) *Whisper {
	w := newWhisper("local", opts, defaultLocalURL, func(s ModelSize) string {
		return "Systran/faster-whisper-" + string(s)
	})
	w.warmup = true
	return w
}

// whisperSegment mirrors Segment field for field so it converts directly.
type whisperSegment struct {
	Text             string  `json:"text"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
	AvgLogProb       float64 `json:"avg_logprob"`
	CompressionRatio float64 `json:"compression_ratio"`
	Temperature      float64 `json:"temperature"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
}

// whisperResponse is the verbose_json body.
type whisperResponse struct {
	Text     string           `json:"text"`
	Duration float64          `json:"duration"`
	Segments []whisperSegment `json:"segments"`
}

// result folds the per-segment scores into utterance-level ones: the worst
// no-speech probability and the mean log probability.
func (r *whisperResponse) result(model string) *Result {
	out := &Result{Text: r.Text, Model: model, Duration: r.Duration}
	if len(r.Segments) == 0 {
		return out
	}
	var logProbSum float64
	for _, seg := range r.Segments {
		out.NoSpeechProb = max(out.NoSpeechProb, seg.NoSpeechProb)
		logProbSum += seg.AvgLogProb
		out.Segments = append(out.Segments, Segment(seg))
	}
	out.AvgLogProb = logProbSum / float64(len(r.Segments))
	return out
}

// form builds the multipart body for one upload.
func (w *Whisper) form(up upload, model string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "audio."+up.Ext)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(up.Data); err != nil {
		return nil, "", err
	}
	fields := [][2]string{{"model", model}, {"response_format", w.responseFormat}}
	if w.lang != "" {
		fields = append(fields, [2]string{"language", w.lang})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return body, mw.FormDataContentType(), nil
}

func (w *Whisper) send(ctx context.Context, up upload, size ModelSize) (*Result, error) {
	model := w.model(size)
	body, contentType, err := w.form(up, model)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.apiURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d: %s", w.name, resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}

	var parsed whisperResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", w.name, err)
	}
	res := parsed.result(model)
	res.Metrics = resp.Metrics
	res.RateLimit = firstNonEmpty(resp.Header, "x-ratelimit-remaining-requests") + "/" +
		firstNonEmpty(resp.Header, "x-ratelimit-limit-requests")
	return res, nil
}
