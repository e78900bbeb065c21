package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const deepgramAPIURL = "https://api.deepgram.com/v1/listen"

// Deepgram uses the prerecorded endpoint with Deepgram's hosted whisper
// models, which come in the same sizes.
type Deepgram struct {
	batch
	apiURL string
	apiKey string
	lang   string
}

func NewDeepgram(opts Options) *Deepgram {
	apiURL := opts.URL
	if apiURL == "" {
		apiURL = deepgramAPIURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	d := &Deepgram{apiURL: apiURL, apiKey: opts.APIKey, lang: opts.Language}
	d.batch = batch{
		name:    "deepgram",
		format:  opts.Format,
		client:  NewTracedClient(timeout),
		warmURL: "https://api.deepgram.com",
		send:    d.send,
	}
	return d
}

type deepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []deepgramAlternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// best is the top alternative of the only channel; captures are mono.
func (r *deepgramResponse) best() deepgramAlternative {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return deepgramAlternative{}
	}
	return r.Results.Channels[0].Alternatives[0]
}

func (d *Deepgram) endpoint(model string) string {
	q := url.Values{"model": {model}, "smart_format": {"true"}}
	if d.lang != "" {
		q.Set("language", d.lang)
	}
	return d.apiURL + "?" + q.Encode()
}

func (d *Deepgram) send(ctx context.Context, up upload, size ModelSize) (*Result, error) {
	model := "whisper-" + string(size)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint(model), bytes.NewReader(up.Data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", up.ContentType)
	req.Header.Set("Authorization", "Token "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepgram: status %d: %s", resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}
	var parsed deepgramResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("deepgram: decode response: %w", err)
	}

	alt := parsed.best()
	return &Result{
		Text:       alt.Transcript,
		Model:      model,
		Metrics:    resp.Metrics,
		Confidence: alt.Confidence,
		Duration:   parsed.Metadata.Duration,
		RateLimit: firstNonEmpty(resp.Header, "x-dg-ratelimit-remaining", "x-ratelimit-remaining", "ratelimit-remaining") +
			"/" + firstNonEmpty(resp.Header, "x-dg-ratelimit-limit", "x-ratelimit-limit", "ratelimit-limit"),
	}, nil
}
