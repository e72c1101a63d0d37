package catalog

import (
	"errors"
	"net/http"
	"time"

	"github.com/jamesainslie/shelf/pkg/shelf/logging"
)

const (
	defaultTimeout  = 20 * time.Second
	defaultRetryMax = 2
	userAgent       = "shelf/1 (+https://github.com/jamesainslie/shelf)"
)

// Transport logs every exchange at debug level and retries replayable
// requests (GET/HEAD without a body) on transport errors. Catalog queries
// are POSTs and are never retried.
type Transport struct {
	Base http.RoundTripper

	// RetryMax is the number of retries after the first attempt.
	RetryMax int

	log *logging.Logger
}

// NewTransport returns a Transport over a proxy-aware http.Transport.
func NewTransport(log *logging.Logger) *Transport {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.Proxy = http.ProxyFromEnvironment
	base.TLSHandshakeTimeout = 10 * time.Second
	base.ResponseHeaderTimeout = 15 * time.Second

	if log == nil {
		log = logging.Get("catalog")
	}
	return &Transport{Base: base, RetryMax: defaultRetryMax, log: log}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	retries := max(t.RetryMax, 0)
	if !canRetry {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", userAgent)
		}

		start := time.Now()
		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			t.log.Debug("catalog request",
				"method", r.Method,
				"url", r.URL.Redacted(),
				"status", resp.StatusCode,
				"elapsed", time.Since(start))
			return resp, nil
		}

		lastErr = err
		t.log.Debug("catalog request failed",
			"method", r.Method,
			"url", r.URL.Redacted(),
			"attempt", attempt+1,
			"error", err)
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// NewDownloadClient returns a plain http.Client using Transport, for fetching
// catalog assets such as cover images. A non-positive timeout uses 20s.
func NewDownloadClient(timeout time.Duration, log *logging.Logger) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Transport: NewTransport(log), Timeout: timeout}
}
