package engine

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admariner/crawler/collect"
)

func TestRetryExhaustion(t *testing.T) {
	fetchErr := errors.New("connection refused")
	f := &stubFetcher{fn: func(context.Context, *collect.Request) (*collect.Response, error) {
		return nil, fetchErr
	}}
	var releases int32
	outcome := make(chan error, 1)
	c := NewCrawler(
		WithFetcher(f),
		WithEvents(Events{OnRelease: func() { atomic.AddInt32(&releases, 1) }}),
	)
	req := &collect.Request{
		URL:           "http://example.com/flaky",
		Retries:       2,
		RetryInterval: time.Millisecond,
		Callback: func(err error, _ *collect.Response, _ func()) {
			outcome <- err
		},
	}
	require.NoError(t, c.Add(req))

	select {
	case err := <-outcome:
		assert.ErrorIs(t, err, fetchErr)
	case <-time.After(time.Second):
		t.Fatal("no outcome delivered")
	}
	c.Wait()
	// 2 retries means 3 attempts total, all on one slot, released once
	assert.EqualValues(t, 3, atomic.LoadInt32(&f.calls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&releases))

	select {
	case <-outcome:
		t.Fatal("callback invoked more than once")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRetryThenSuccess(t *testing.T) {
	f := &stubFetcher{}
	f.fn = func(_ context.Context, req *collect.Request) (*collect.Response, error) {
		if atomic.LoadInt32(&f.calls) < 3 {
			return nil, errors.New("flaky")
		}
		return okResponse(req, "text/plain", "finally"), nil
	}
	c := NewCrawler(WithFetcher(f))
	resp, err := c.Do(context.Background(), []byte(`{
		"url": "http://example.com/flaky",
		"retries": 5,
		"retry_interval_ms": 1
	}`))
	require.NoError(t, err)
	assert.Equal(t, "finally", resp.Text)
	assert.EqualValues(t, 3, atomic.LoadInt32(&f.calls))
}

func TestHookShortCircuit(t *testing.T) {
	f := okFetcher("text/plain", "never")
	var releases int32
	outcome := make(chan error, 1)
	c := NewCrawler(
		WithFetcher(f),
		WithEvents(Events{OnRelease: func() { atomic.AddInt32(&releases, 1) }}),
	)
	req := &collect.Request{
		URL: "http://example.com/guarded",
		PreRequest: func(*collect.Request) error {
			return errors.New("denied")
		},
		Callback: func(err error, _ *collect.Response, _ func()) {
			outcome <- err
		},
	}
	require.NoError(t, c.Add(req))

	select {
	case err := <-outcome:
		assert.ErrorContains(t, err, "pre-request hook")
		assert.ErrorContains(t, err, "denied")
	case <-time.After(time.Second):
		t.Fatal("no outcome delivered")
	}
	c.Wait()
	assert.Zero(t, atomic.LoadInt32(&f.calls), "transport must not be called")
	assert.EqualValues(t, 1, atomic.LoadInt32(&releases))
}

func TestCharsetFromBodyDeclaration(t *testing.T) {
	body := "<html><head><meta charset=\"iso-8859-1\"></head><body>caf\xe9</body></html>"
	f := &stubFetcher{fn: func(_ context.Context, req *collect.Request) (*collect.Response, error) {
		// no content-type header at all
		return &collect.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       []byte(body),
			Request:    req,
		}, nil
	}}
	c := NewCrawler(WithFetcher(f))
	resp, err := c.Do(context.Background(), "http://example.com/latin")
	require.NoError(t, err)
	assert.Equal(t, "windows-1252", resp.Charset)
	assert.Contains(t, resp.Text, "café")
}

func TestForcedEncodingWins(t *testing.T) {
	f := &stubFetcher{fn: func(_ context.Context, req *collect.Request) (*collect.Response, error) {
		resp := okResponse(req, "text/html; charset=utf-8", "caf\xe9")
		return resp, nil
	}}
	c := NewCrawler(WithFetcher(f), WithEncoding("iso-8859-1"))
	resp, err := c.Do(context.Background(), "http://example.com/forced")
	require.NoError(t, err)
	assert.Equal(t, "café", resp.Text)
}

func TestStructuredDataParse(t *testing.T) {
	c := NewCrawler(WithFetcher(okFetcher("application/json", `{"count": 2}`)))
	resp, err := c.Do(context.Background(), []byte(`{"url":"http://example.com/api","json":true}`))
	require.NoError(t, err)
	require.NotNil(t, resp.Data)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, data["count"])
	assert.Nil(t, resp.Document, "json is not markup")
}

func TestStructuredDataParseFailureKeepsText(t *testing.T) {
	c := NewCrawler(WithFetcher(okFetcher("application/json", `{"count":`)))
	resp, err := c.Do(context.Background(), []byte(`{"url":"http://example.com/api","json":true}`))
	require.NoError(t, err)
	assert.Nil(t, resp.Data)
	assert.Equal(t, `{"count":`, resp.Text)
}

func TestInlineBodySkipsTransport(t *testing.T) {
	f := okFetcher("text/plain", "never")
	got := make(chan *collect.Response, 1)
	c := NewCrawler(WithFetcher(f))
	req := &collect.Request{
		HTML:          `<html><head><title>inline</title></head></html>`,
		ParseDocument: true,
		Callback: func(err error, resp *collect.Response, release func()) {
			release()
			assert.NoError(t, err)
			got <- resp
		},
	}
	require.NoError(t, c.Add(req))

	select {
	case resp := <-got:
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Text, "inline")
		require.NotNil(t, resp.Document)
		titles := collect.FindAll(resp.Document, "title")
		require.Len(t, titles, 1)
		assert.Equal(t, "inline", collect.Text(titles[0]))
	case <-time.After(time.Second):
		t.Fatal("no response delivered")
	}
	c.Wait()
	assert.Zero(t, atomic.LoadInt32(&f.calls))
}

func TestEmptyBodyNormalized(t *testing.T) {
	c := NewCrawler(WithFetcher(okFetcher("text/html", "")))
	resp, err := c.Do(context.Background(), "http://example.com/empty")
	require.NoError(t, err)
	assert.Empty(t, resp.Text)
	assert.Empty(t, resp.Body)
}

func TestBinaryBodyKeptRaw(t *testing.T) {
	raw := string([]byte{0x89, 'P', 'N', 'G', 0x00, 0x01})
	c := NewCrawler(WithFetcher(okFetcher("image/png", raw)))
	resp, err := c.Do(context.Background(), "http://example.com/img.png")
	require.NoError(t, err)
	assert.Equal(t, raw, resp.Text)
	assert.Empty(t, resp.Charset)
	assert.Nil(t, resp.Document)
}
