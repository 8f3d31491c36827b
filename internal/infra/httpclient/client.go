package httpclient

import (
	"net"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quizforge/server/internal/infra/config"
)

// Option customizes the client built by New.
type Option func(*options)

type options struct {
	tracing bool
}

// WithTracing wraps the transport so outbound calls become client spans.
func WithTracing(enabled bool) Option {
	return func(o *options) { o.tracing = enabled }
}

// New creates the pooled client shared by the completion providers and the
// PayPal IPN verifier. ResponseTimeout bounds the whole exchange; callers
// that need a tighter bound use a context deadline.
func New(cfg config.HTTPClientConfig, opts ...Option) *http.Client {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var rt http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}
	if o.tracing {
		rt = otelhttp.NewTransport(rt)
	}

	return &http.Client{Transport: rt, Timeout: cfg.ResponseTimeout}
}
