package collect

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Callback receives the final outcome of one request. Exactly one of err and
// resp is set. release hands the concurrency slot back and must be called
// when the caller is done with the response; calling it more than once has
// no further effect. On the failure path the scheduler releases the slot
// itself after the callback returns.
type Callback func(err error, resp *Response, release func())

// PreRequest runs just before the network step. It may mutate the request,
// or abort it by returning an error.
type PreRequest func(req *Request) error

// Request is the normalized unit of work flowing through the scheduler.
//
// Zero values in a caller-built Request are taken literally, except for
// fields whose zero value is unusable (Method, Timeout, RetryInterval,
// Header, UserAgents, Proxies): those are backfilled from the crawler
// defaults at admission. URL-string and serialized inputs inherit all
// defaults.
type Request struct {
	ID     string
	URL    string
	Method string
	Header http.Header
	Body   []byte

	// Priority orders dispatch within one limiter; lower is more urgent.
	Priority int
	// LimiterKey selects the rate limiter governing this request.
	// Empty means the default limiter.
	LimiterKey    string
	Retries       int
	RetryInterval time.Duration
	Timeout       time.Duration

	// Proxy and UserAgent pin a fixed value; the list forms rotate
	// round-robin, one step per dispatch. The executor writes the chosen
	// value back into the fixed field.
	Proxy      string
	Proxies    []string
	UserAgent  string
	UserAgents []string
	Referer    string

	// Encoding forces the charset used to decode the body (e.g. "gbk").
	Encoding    string
	ForceDecode bool
	// JSON requests a structured-data parse of the decoded body.
	JSON bool
	// ParseDocument requests a query-capable document when the response
	// carries markup.
	ParseDocument bool
	// HTML supplies an inline body. The transport is skipped entirely and
	// the body runs through the normal decode/parse pipeline.
	HTML string

	SkipRequestEvent bool
	PreRequest       PreRequest
	Callback         Callback

	ctx context.Context
}

// Defaults carries crawler-level settings merged into admitted requests.
type Defaults struct {
	Method        string
	Header        http.Header
	Priority      int
	Retries       int
	RetryInterval time.Duration
	Timeout       time.Duration
	Proxies       []string
	UserAgents    []string
	Encoding      string
	ForceDecode   bool
	JSON          bool
	ParseDocument bool
}

// requestInput is the serialized admitted shape. Pointer fields distinguish
// "absent" from a zero value so defaults can fill the gaps.
type requestInput struct {
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	Headers         map[string]string `json:"headers"`
	Priority        *int              `json:"priority"`
	Limiter         string            `json:"limiter"`
	Retries         *int              `json:"retries"`
	RetryIntervalMs int64             `json:"retry_interval_ms"`
	TimeoutMs       int64             `json:"timeout_ms"`
	Proxy           string            `json:"proxy"`
	Proxies         []string          `json:"proxies"`
	UserAgent       string            `json:"user_agent"`
	UserAgents      []string          `json:"user_agents"`
	Referer         string            `json:"referer"`
	Encoding        string            `json:"encoding"`
	ForceDecode     *bool             `json:"force_decode"`
	JSON            *bool             `json:"json"`
	ParseDocument   *bool             `json:"parse_document"`
	HTML            string            `json:"html"`
}

// NewRequest collapses one admitted input shape into a validated Request.
// Admitted shapes: a URL string, a JSON-serialized form ([]byte or
// json.RawMessage), or a *Request. Anything else fails with a
// *ValidationError.
func NewRequest(input any, d Defaults) (*Request, error) {
	var req *Request
	switch v := input.(type) {
	case string:
		req = &Request{
			URL:           v,
			Priority:      d.Priority,
			Retries:       d.Retries,
			Encoding:      d.Encoding,
			ForceDecode:   d.ForceDecode,
			JSON:          d.JSON,
			ParseDocument: d.ParseDocument,
		}
	case []byte:
		var err error
		if req, err = fromSerialized(v, d); err != nil {
			return nil, err
		}
	case json.RawMessage:
		var err error
		if req, err = fromSerialized(v, d); err != nil {
			return nil, err
		}
	case *Request:
		if v == nil {
			return nil, &ValidationError{Reason: "nil request"}
		}
		req = v
	default:
		return nil, &ValidationError{Reason: "unsupported input shape"}
	}
	applyDefaults(req, d)
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	return req, nil
}

func fromSerialized(raw []byte, d Defaults) (*Request, error) {
	var in requestInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, &ValidationError{Reason: "malformed serialized request: " + err.Error()}
	}
	req := &Request{
		URL:           in.URL,
		Method:        in.Method,
		Priority:      d.Priority,
		LimiterKey:    in.Limiter,
		Retries:       d.Retries,
		RetryInterval: time.Duration(in.RetryIntervalMs) * time.Millisecond,
		Timeout:       time.Duration(in.TimeoutMs) * time.Millisecond,
		Proxy:         in.Proxy,
		Proxies:       in.Proxies,
		UserAgent:     in.UserAgent,
		UserAgents:    in.UserAgents,
		Referer:       in.Referer,
		Encoding:      in.Encoding,
		ForceDecode:   d.ForceDecode,
		JSON:          d.JSON,
		ParseDocument: d.ParseDocument,
		HTML:          in.HTML,
	}
	if in.Encoding == "" {
		req.Encoding = d.Encoding
	}
	if in.Priority != nil {
		req.Priority = *in.Priority
	}
	if in.Retries != nil {
		req.Retries = *in.Retries
	}
	if in.ForceDecode != nil {
		req.ForceDecode = *in.ForceDecode
	}
	if in.JSON != nil {
		req.JSON = *in.JSON
	}
	if in.ParseDocument != nil {
		req.ParseDocument = *in.ParseDocument
	}
	if len(in.Headers) > 0 {
		req.Header = http.Header{}
		for k, v := range in.Headers {
			req.Header.Set(k, v)
		}
	}

	return req, nil
}

// applyDefaults backfills the unusable zero values and merges header maps;
// request-specific headers override the base set.
func applyDefaults(req *Request, d Defaults) {
	if req.Method == "" {
		if d.Method != "" {
			req.Method = d.Method
		} else {
			req.Method = http.MethodGet
		}
	}
	if req.Timeout == 0 {
		req.Timeout = d.Timeout
	}
	if req.RetryInterval == 0 {
		req.RetryInterval = d.RetryInterval
	}
	if req.Proxy == "" && len(req.Proxies) == 0 {
		req.Proxies = d.Proxies
	}
	if req.UserAgent == "" && len(req.UserAgents) == 0 {
		req.UserAgents = d.UserAgents
	}
	merged := http.Header{}
	for k, vs := range d.Header {
		merged[k] = vs
	}
	for k, vs := range req.Header {
		merged[k] = vs
	}
	req.Header = merged
}

func validate(req *Request) error {
	if req.HTML != "" {
		return nil
	}
	if req.URL == "" {
		return &ValidationError{Reason: "empty url"}
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return &ValidationError{Reason: "unparseable url: " + err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Reason: "unsupported url scheme: " + u.Scheme}
	}

	return nil
}

// Fingerprint identifies the request for duplicate detection: method + URL
// plus the values of any extra header fields configured for the check.
func (r *Request) Fingerprint(extraFields ...string) string {
	s := r.Method + r.URL
	for _, f := range extraFields {
		s += "\x00" + r.Header.Get(f)
	}
	sum := md5.Sum([]byte(s))

	return hex.EncodeToString(sum[:])
}

// SetContext attaches the caller's context; the executor derives the
// per-attempt timeout from it and passes it through to the transport.
func (r *Request) SetContext(ctx context.Context) {
	r.ctx = ctx
}

func (r *Request) Context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}

	return context.Background()
}
