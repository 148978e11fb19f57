package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// loggingTransport wraps an http.RoundTripper and logs every call at debug
// level. It also stamps each request with an X-Request-ID.
type loggingTransport struct {
	next   http.RoundTripper
	logger *zap.SugaredLogger
}

func newLoggingTransport(next http.RoundTripper, logger *zap.SugaredLogger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{next: next, logger: logger}
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("X-Request-ID") == "" {
		// RoundTrip must not mutate the caller's request
		r = r.Clone(r.Context())
		r.Header.Set("X-Request-ID", uuid.NewString())
	}
	start := time.Now()
	resp, err := t.next.RoundTrip(r)
	dur := time.Since(start)
	if err != nil {
		t.logger.Debugw("api request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Header.Get("X-Request-ID"),
			"duration_ms", float64(dur.Microseconds())/1000.0,
			"err", err,
		)
		return nil, err
	}
	t.logger.Debugw("api request",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", r.Header.Get("X-Request-ID"),
		"status", resp.StatusCode,
		"duration_ms", float64(dur.Microseconds())/1000.0,
	)
	return resp, nil
}
