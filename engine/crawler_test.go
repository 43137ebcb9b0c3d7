package engine

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admariner/crawler/collect"
	"github.com/admariner/crawler/dedup"
	"github.com/admariner/crawler/limiter"
)

// stubFetcher counts attempts and delegates to fn.
type stubFetcher struct {
	calls int32
	fn    func(ctx context.Context, req *collect.Request) (*collect.Response, error)
}

func (f *stubFetcher) Fetch(ctx context.Context, req *collect.Request) (*collect.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.fn(ctx, req)
}

func okResponse(req *collect.Request, contentType, body string) *collect.Response {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &collect.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       []byte(body),
		Request:    req,
	}
}

func okFetcher(contentType, body string) *stubFetcher {
	return &stubFetcher{fn: func(_ context.Context, req *collect.Request) (*collect.Response, error) {
		return okResponse(req, contentType, body), nil
	}}
}

func TestDoSuccess(t *testing.T) {
	c := NewCrawler(WithFetcher(okFetcher("text/html", "<html><title>hi</title></html>")))
	resp, err := c.Do(context.Background(), "http://example.com/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html><title>hi</title></html>", resp.Text)
	require.NotNil(t, resp.Document)
	titles := collect.FindAll(resp.Document, "title")
	require.Len(t, titles, 1)
	assert.Equal(t, "hi", collect.Text(titles[0]))
	assert.True(t, c.Empty())
}

func TestAddValidation(t *testing.T) {
	c := NewCrawler(WithFetcher(okFetcher("", "")))
	var verr *collect.ValidationError

	err := c.Add(123)
	require.Error(t, err)
	assert.ErrorAs(t, err, &verr)

	err = c.Add("ftp://example.com/file")
	require.Error(t, err)
	assert.ErrorAs(t, err, &verr)

	assert.True(t, c.Empty())
}

func TestDuplicateSkipped(t *testing.T) {
	var schedules int32
	c := NewCrawler(
		WithFetcher(okFetcher("text/plain", "ok")),
		WithStore(dedup.NewInMemory()),
		WithEvents(Events{OnSchedule: func(*collect.Request) { atomic.AddInt32(&schedules, 1) }}),
	)
	require.NoError(t, c.Add("http://example.com/a"))
	require.NoError(t, c.Add("http://example.com/a"))
	c.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&schedules))

	_, err := c.Do(context.Background(), "http://example.com/a")
	assert.ErrorIs(t, err, ErrDuplicate)
}

// failingStore errors on every call; the scheduler must log and admit.
type failingStore struct{}

func (failingStore) Init(context.Context) error { return errors.New("store down") }
func (failingStore) Seen(context.Context, string) (bool, error) {
	return false, errors.New("store down")
}

func TestDuplicateCheckFailsOpen(t *testing.T) {
	var schedules int32
	c := NewCrawler(
		WithFetcher(okFetcher("text/plain", "ok")),
		WithStore(failingStore{}),
		WithEvents(Events{OnSchedule: func(*collect.Request) { atomic.AddInt32(&schedules, 1) }}),
	)
	require.NoError(t, c.Add("http://example.com/a"))
	require.NoError(t, c.Add("http://example.com/a"))
	c.Wait()
	assert.EqualValues(t, 2, atomic.LoadInt32(&schedules))
}

func TestRotation(t *testing.T) {
	var mu sync.Mutex
	var agents, proxies []string
	f := &stubFetcher{fn: func(_ context.Context, req *collect.Request) (*collect.Response, error) {
		mu.Lock()
		agents = append(agents, req.Header.Get("User-Agent"))
		proxies = append(proxies, req.Proxy)
		mu.Unlock()
		return okResponse(req, "text/plain", "ok"), nil
	}}
	c := NewCrawler(
		WithFetcher(f),
		WithUserAgents("ua-1", "ua-2"),
		WithProxies("http://p1:8080", "http://p2:8080"),
	)
	for i, u := range []string{"http://example.com/1", "http://example.com/2", "http://example.com/3"} {
		_, err := c.Do(context.Background(), u)
		require.NoError(t, err, "request %d", i)
	}
	assert.Equal(t, []string{"ua-1", "ua-2", "ua-1"}, agents)
	assert.Equal(t, []string{"http://p1:8080", "http://p2:8080", "http://p1:8080"}, proxies)
}

func TestEvents(t *testing.T) {
	var mu sync.Mutex
	var requested []string
	var limiterKeys []string
	var drains int32
	// the gate keeps both requests in flight together so the cluster
	// empties exactly once
	gate := make(chan struct{})
	f := &stubFetcher{fn: func(_ context.Context, req *collect.Request) (*collect.Response, error) {
		<-gate
		return okResponse(req, "text/plain", "ok"), nil
	}}
	c := NewCrawler(
		WithFetcher(f),
		WithEvents(Events{
			OnRequest: func(req *collect.Request) {
				mu.Lock()
				requested = append(requested, req.URL)
				mu.Unlock()
			},
			OnLimiterChange: func(_ *collect.Request, key string) {
				mu.Lock()
				limiterKeys = append(limiterKeys, key)
				mu.Unlock()
			},
			OnDrain: func() { atomic.AddInt32(&drains, 1) },
		}),
	)
	require.NoError(t, c.Add(&collect.Request{URL: "http://example.com/1", LimiterKey: "other"}))
	require.NoError(t, c.Add(&collect.Request{URL: "http://example.com/2", SkipRequestEvent: true}))
	close(gate)
	c.Wait()
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"http://example.com/1"}, requested)
	assert.Equal(t, []string{"other"}, limiterKeys)
	assert.EqualValues(t, 1, atomic.LoadInt32(&drains))
}

func TestQueueBoundSurfacesAtAdmission(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 4)
	f := &stubFetcher{fn: func(_ context.Context, req *collect.Request) (*collect.Response, error) {
		started <- struct{}{}
		<-block
		return okResponse(req, "text/plain", "ok"), nil
	}}
	c := NewCrawler(WithFetcher(f), WithMaxConnections(1), WithMaxQueueLen(1))

	require.NoError(t, c.Add("http://example.com/1"))
	<-started // first request holds the slot
	require.NoError(t, c.Add("http://example.com/2"))

	err := c.Add("http://example.com/3")
	require.Error(t, err)
	assert.ErrorIs(t, err, limiter.ErrQueueFull)

	close(block)
	c.Wait()
}

func TestSetRateLimitSpacing(t *testing.T) {
	var mu sync.Mutex
	var starts []time.Time
	f := &stubFetcher{fn: func(_ context.Context, req *collect.Request) (*collect.Response, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return okResponse(req, "text/plain", "ok"), nil
	}}
	c := NewCrawler(WithFetcher(f))
	c.SetRateLimit(limiter.DefaultKey, 40*time.Millisecond)
	require.NoError(t, c.Add("http://example.com/1", "http://example.com/2"))
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 2)
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), 35*time.Millisecond)
}
