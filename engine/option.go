package engine

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/admariner/crawler/collect"
	"github.com/admariner/crawler/dedup"
	"github.com/admariner/crawler/limiter"
)

type Option func(opt *options)

type options struct {
	logger  *zap.Logger
	fetcher collect.Fetcher
	parser  collect.DocumentParser
	store   dedup.Store
	events  Events
	policy  limiter.Policy

	headers    http.Header
	userAgents []string
	proxies    []string

	maxConnections  int
	rateLimit       time.Duration
	priorityLevels  int
	defaultPriority int
	maxQueueLen     int

	retries       int
	retryInterval time.Duration
	timeout       time.Duration

	skipDuplicates bool
	dedupFields    []string
	originReferer  bool

	encoding      string
	forceDecode   bool
	parseJSON     bool
	parseDocument bool
}

var defaultOptions = options{
	logger:          zap.NewNop(),
	maxConnections:  10,
	priorityLevels:  10,
	defaultPriority: 5,
	retries:         3,
	retryInterval:   10 * time.Second,
	timeout:         20 * time.Second,
	parseDocument:   true,
}

func WithLogger(logger *zap.Logger) Option {
	return func(opt *options) {
		opt.logger = logger
	}
}

// WithFetcher replaces the transport collaborator.
func WithFetcher(fetcher collect.Fetcher) Option {
	return func(opt *options) {
		opt.fetcher = fetcher
	}
}

// WithDocumentParser replaces the document-parsing collaborator.
func WithDocumentParser(parser collect.DocumentParser) Option {
	return func(opt *options) {
		opt.parser = parser
	}
}

// WithStore sets the dedup collaborator and enables duplicate skipping.
func WithStore(store dedup.Store) Option {
	return func(opt *options) {
		opt.store = store
		opt.skipDuplicates = true
	}
}

// WithSkipDuplicates toggles the duplicate check without replacing the store.
func WithSkipDuplicates(skip bool) Option {
	return func(opt *options) {
		opt.skipDuplicates = skip
	}
}

// WithDedupFields names extra header fields mixed into the duplicate
// fingerprint besides method and URL.
func WithDedupFields(fields ...string) Option {
	return func(opt *options) {
		opt.dedupFields = fields
	}
}

func WithEvents(events Events) Option {
	return func(opt *options) {
		opt.events = events
	}
}

// WithSharedCluster makes every limiter key resolve to one shared limiter.
func WithSharedCluster() Option {
	return func(opt *options) {
		opt.policy = limiter.PolicyShared
	}
}

func WithHeaders(headers http.Header) Option {
	return func(opt *options) {
		opt.headers = headers
	}
}

func WithUserAgents(userAgents ...string) Option {
	return func(opt *options) {
		opt.userAgents = userAgents
	}
}

func WithProxies(proxies ...string) Option {
	return func(opt *options) {
		opt.proxies = proxies
	}
}

// WithMaxConnections caps concurrent slots per limiter.
func WithMaxConnections(n int) Option {
	return func(opt *options) {
		opt.maxConnections = n
	}
}

// WithRateLimit sets the minimum interval between dispatch starts per
// limiter. A nonzero interval forces the per-limiter connection cap to 1.
func WithRateLimit(interval time.Duration) Option {
	return func(opt *options) {
		opt.rateLimit = interval
	}
}

func WithPriorityLevels(levels int) Option {
	return func(opt *options) {
		opt.priorityLevels = levels
	}
}

func WithDefaultPriority(priority int) Option {
	return func(opt *options) {
		opt.defaultPriority = priority
	}
}

// WithMaxQueueLen bounds each limiter's pending queue; submissions beyond
// the bound fail with limiter.ErrQueueFull. Zero means unbounded.
func WithMaxQueueLen(n int) Option {
	return func(opt *options) {
		opt.maxQueueLen = n
	}
}

func WithRetries(retries int) Option {
	return func(opt *options) {
		opt.retries = retries
	}
}

func WithRetryInterval(interval time.Duration) Option {
	return func(opt *options) {
		opt.retryInterval = interval
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(opt *options) {
		opt.timeout = timeout
	}
}

// WithOriginReferer derives a referer from the target's origin when a
// request carries none.
func WithOriginReferer() Option {
	return func(opt *options) {
		opt.originReferer = true
	}
}

// WithEncoding forces the charset used to decode bodies.
func WithEncoding(encoding string) Option {
	return func(opt *options) {
		opt.encoding = encoding
	}
}

func WithForceDecode(force bool) Option {
	return func(opt *options) {
		opt.forceDecode = force
	}
}

// WithJSON requests a structured-data parse of every decoded body.
func WithJSON(parse bool) Option {
	return func(opt *options) {
		opt.parseJSON = parse
	}
}

// WithParseDocument toggles document parsing of markup responses.
func WithParseDocument(parse bool) Option {
	return func(opt *options) {
		opt.parseDocument = parse
	}
}
