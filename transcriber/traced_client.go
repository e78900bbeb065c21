package transcriber

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// maxResponseBody bounds what a backend may send back. Transcripts of a
// 30 s utterance are a few KB even with segment detail.
const maxResponseBody = 4 << 20

// TracedClient is an HTTP client that reports per-phase timings for every
// request, so slow utterances can be attributed to the network or the
// backend.
type TracedClient struct {
	client *http.Client
}

func NewTracedClient(timeout time.Duration) *TracedClient {
	return &TracedClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

type TracedResponse struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *NetworkMetrics
}

// phaseClock records the timestamps of one request's lifecycle into m.
type phaseClock struct {
	m *NetworkMetrics

	getConn, dns, connect, handshake time.Time
	gotConn, headers, body, first    time.Time
}

func (p *phaseClock) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(string) { p.getConn = time.Now() },
		GotConn: func(info httptrace.GotConnInfo) {
			p.gotConn = time.Now()
			p.m.ConnWait = p.gotConn.Sub(p.getConn)
			p.m.ConnReused = info.Reused
		},
		DNSStart:          func(httptrace.DNSStartInfo) { p.dns = time.Now() },
		DNSDone:           func(httptrace.DNSDoneInfo) { p.m.DNS = time.Since(p.dns) },
		ConnectStart:      func(string, string) { p.connect = time.Now() },
		ConnectDone:       func(string, string, error) { p.m.TCP = time.Since(p.connect) },
		TLSHandshakeStart: func() { p.handshake = time.Now() },
		TLSHandshakeDone: func(cs tls.ConnectionState, _ error) {
			p.m.TLS = time.Since(p.handshake)
			p.m.TLSProtocol = cs.NegotiatedProtocol
		},
		WroteHeaders: func() {
			p.headers = time.Now()
			p.m.ReqHeaders = p.headers.Sub(p.gotConn)
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			p.body = time.Now()
			p.m.ReqBody = p.body.Sub(p.headers)
		},
		GotFirstResponseByte: func() {
			p.first = time.Now()
			p.m.TTFB = p.first.Sub(p.body)
		},
	}
}

// Do sends req and reads the whole response body.
func (c *TracedClient) Do(req *http.Request) (*TracedResponse, error) {
	clock := &phaseClock{m: &NetworkMetrics{}}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), clock.trace()))
	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(body) > maxResponseBody {
		return nil, fmt.Errorf("response larger than %d bytes", maxResponseBody)
	}
	clock.m.Download = time.Since(clock.first)
	clock.m.Total = time.Since(start)

	return &TracedResponse{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Metrics:    clock.m,
	}, nil
}

// WarmConnection opens a pooled connection to url before the first real
// upload and returns how long the TLS handshake took (zero for plain HTTP
// or on failure).
func (c *TracedClient) WarmConnection(ctx context.Context, url string) time.Duration {
	clock := &phaseClock{m: &NetworkMetrics{}}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, clock.trace()), http.MethodHead, url, nil)
	if err != nil {
		return 0
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return clock.m.TLS
}
