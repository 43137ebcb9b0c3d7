package collect

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Fetcher is the transport collaborator: it performs the network I/O for a
// normalized request and returns the raw result. Transfer failures
// (connection, timeout, protocol) are returned as errors; HTTP status codes
// are not errors, the response is delivered as-is.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// HTTPFetch is the default transport over net/http. It honors the chosen
// proxy, the TLS verification flag and the HTTP/2 toggle, and reads the
// body in full.
type HTTPFetch struct {
	// Timeout applies when the request carries no deadline of its own.
	Timeout       time.Duration
	SkipTLSVerify bool
	// ForceHTTP2 enables the newer protocol version on the transport.
	ForceHTTP2  bool
	MaxBodySize int64
	Logger      *zap.Logger
}

func (f *HTTPFetch) Fetch(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	request, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		request.Header[k] = vs
	}

	transport := &http.Transport{
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: f.SkipTLSVerify},
		ForceAttemptHTTP2: f.ForceHTTP2,
	}
	if req.Proxy != "" {
		proxyURL, err := url.Parse(req.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   f.Timeout,
	}

	resp, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reader := io.Reader(resp.Body)
	if f.MaxBodySize > 0 {
		reader = io.LimitReader(resp.Body, f.MaxBodySize)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       raw,
		Request:    req,
	}, nil
}
