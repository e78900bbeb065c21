package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"
)

const defaultLibreURL = "http://localhost:5000"

// Libre talks to a LibreTranslate server.
type Libre struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewLibre(opts Options) *Libre {
	base := opts.URL
	if base == "" {
		base = defaultLibreURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Libre{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  opts.APIKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        2,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (l *Libre) Name() string { return "libretranslate" }

type libreLanguage struct {
	Code    string   `json:"code"`
	Name    string   `json:"name"`
	Targets []string `json:"targets"`
}

// Load checks that the server offers the English to Spanish pair.
func (l *Libre) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/languages", nil)
	if err != nil {
		return err
	}
	body, err := l.do(req)
	if err != nil {
		return err
	}
	var langs []libreLanguage
	if err := json.Unmarshal(body, &langs); err != nil {
		return fmt.Errorf("languages parse error: %w", err)
	}
	for _, lang := range langs {
		if lang.Code != SourceLang {
			continue
		}
		// Older servers omit targets and translate between every pair.
		if len(lang.Targets) == 0 || slices.Contains(lang.Targets, TargetLang) {
			return nil
		}
	}
	return fmt.Errorf("server does not offer %s->%s", SourceLang, TargetLang)
}

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

func (l *Libre) Translate(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(libreRequest{
		Q:      text,
		Source: SourceLang,
		Target: TargetLang,
		Format: "text",
		APIKey: l.apiKey,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := l.do(req)
	if err != nil {
		return "", err
	}
	var resp libreResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("translate parse error: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("libretranslate: %s", resp.Error)
	}
	return resp.TranslatedText, nil
}

func (l *Libre) do(req *http.Request) ([]byte, error) {
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var e libreResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("libretranslate error %d: %s", resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("libretranslate error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
