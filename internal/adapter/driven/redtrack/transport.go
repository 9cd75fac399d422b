package redtrack

import (
	"net/http"

	"github.com/gregjones/httpcache"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/rtprovision/internal/domain/model"
)

// rateLimitedTransport blocks each outbound request on a shared token bucket.
type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

// RoundTrip waits for a token, then delegates to the base transport.
func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, model.NormalizeTransportError(err, "rate limiter wait")
	}
	return t.base.RoundTrip(req)
}

// NewLimiter builds the shared limiter for platform traffic. rps <= 0 disables limiting.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// newReadTransport builds the transport stack for the key-authenticated API:
//  1. httpcache (ETag-based conditional request caching)
//  2. token bucket shared with the write channel
//  3. http.DefaultTransport
func newReadTransport(limiter *rate.Limiter) http.RoundTripper {
	cache := httpcache.NewMemoryCacheTransport()
	cache.Transport = &rateLimitedTransport{base: http.DefaultTransport, limiter: limiter}
	return cache
}

// newWriteTransport skips caching; landings are never GET requests.
func newWriteTransport(limiter *rate.Limiter) http.RoundTripper {
	return &rateLimitedTransport{base: http.DefaultTransport, limiter: limiter}
}
