package geocode

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/geocode-cli/internal/resilience"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// Option configures an HTTP-backed provider.
type Option func(*httpConfig)

type httpConfig struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	userAgent  string
	bounds     *Bounds
	proximity  *Point
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpConfig) {
		c.httpClient = hc
	}
}

// WithRateLimit throttles the provider to rps requests per second.
// A non-positive rps removes any provider-side throttle.
func WithRateLimit(rps float64) Option {
	return func(c *httpConfig) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithBaseURL overrides the scheme and host the provider talks to, e.g. a
// self-hosted Nominatim or a test server. A bare domain gets https://.
func WithBaseURL(u string) Option {
	return func(c *httpConfig) {
		if u == "" {
			return
		}
		if !strings.Contains(u, "://") {
			u = "https://" + u
		}
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *httpConfig) {
		c.userAgent = ua
	}
}

// WithBounds biases results toward a bounding box, for backends that support it.
func WithBounds(b Bounds) Option {
	return func(c *httpConfig) {
		c.bounds = &b
	}
}

// WithProximity biases results toward a point, for backends that support it.
func WithProximity(p Point) Option {
	return func(c *httpConfig) {
		c.proximity = &p
	}
}

func newHTTPConfig(defaultBaseURL string, opts []Option) httpConfig {
	c := httpConfig{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		userAgent:  "geocode-cli",
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// get performs one GET request and maps every failure onto a ProviderError.
// The body is only returned for 200 responses.
func (c *httpConfig) get(ctx context.Context, provider, query, reqURL string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, NewProviderError(KindTransport, provider, query, eris.Wrap(err, "rate limit wait"))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, NewProviderError(KindInvalidQuery, provider, query, eris.Wrap(err, "build request"))
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewProviderError(requestKind(err), provider, query, eris.Wrap(err, "request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, NewProviderError(KindTransport, provider, query, eris.Wrap(err, "read body"))
	}

	if resp.StatusCode != http.StatusOK {
		kind := statusKind(resp.StatusCode)
		zap.L().Debug("geocode: provider returned non-200",
			zap.String("provider", provider),
			zap.Int("status", resp.StatusCode),
			zap.Stringer("kind", kind),
		)
		err := eris.Errorf("status %d", resp.StatusCode)
		if kind == KindTransport {
			err = resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, NewProviderError(kind, provider, query, err)
	}
	return body, nil
}

// requestKind maps a failed round trip to a failure kind. Certificate
// failures halt like a rejected key and an endpoint that cannot resolve halts
// like a bad query; everything else is retried as transport.
func requestKind(err error) Kind {
	switch resilience.Classify(err) {
	case resilience.ClassUntrusted:
		return KindAuth
	case resilience.ClassMisconfigured:
		return KindInvalidQuery
	default:
		return KindTransport
	}
}

// statusKind maps a non-200 HTTP status to a failure kind.
func statusKind(code int) Kind {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindInvalidQuery
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusPaymentRequired, http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusNotFound:
		return KindNotFound
	default:
		return KindTransport
	}
}
