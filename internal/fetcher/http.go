package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/ticker-ingest/internal/config"
	"github.com/sells-group/ticker-ingest/internal/resilience"
)

const (
	defaultRate    = 5.0
	errorBodyLimit = 256
	redactedValue  = "REDACTED"
)

// secretParams are query parameters never echoed into errors or logs.
var secretParams = []string{"apikey", "api_key", "token"}

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	Retry     resilience.RetryPolicy
	Breaker   resilience.BreakerConfig
	// HostRates sets the requests-per-second budget of individual hosts.
	// Other hosts get a default budget.
	HostRates map[string]float64
}

// OptionsFromConfig derives fetcher options from the application config,
// giving each configured provider host its own rate budget.
func OptionsFromConfig(cfg *config.Config) HTTPOptions {
	rates := make(map[string]float64)
	setRate := func(rawURL string, perSec float64) {
		if perSec <= 0 {
			return
		}
		if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
			rates[u.Host] = perSec
		}
	}
	setRate(cfg.Providers.Yahoo.QueryURL, cfg.Providers.Yahoo.RatePerSecond)
	setRate(cfg.Providers.Yahoo.SummaryURL, cfg.Providers.Yahoo.RatePerSecond)
	setRate(cfg.Providers.FMP.BaseURL, cfg.Providers.FMP.RatePerSecond)

	return HTTPOptions{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   time.Duration(cfg.HTTP.TimeoutSecs) * time.Second,
		Retry:     resilience.PolicyFromConfig(cfg.Retry),
		Breaker:   resilience.BreakerConfigFrom(cfg.Circuit),
		HostRates: rates,
	}
}

// AdaptiveLimiter is a token bucket that slows down after a 429 and
// recovers gradually on success, between a quarter and twice the initial
// rate.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	current rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter.
func NewAdaptiveLimiter(r rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(r, burst),
		initial: r,
		current: r,
	}
}

// Wait blocks until a request may be sent.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLocked(min(a.current*1.2, a.initial*2))
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLocked(max(a.current*0.5, a.initial/4))
	zap.L().Warn("fetcher: rate limited, slowing down",
		zap.Float64("rate", float64(a.current)),
	)
}

func (a *AdaptiveLimiter) setLocked(r rate.Limit) {
	a.current = r
	a.limiter.SetLimit(r)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// HTTPFetcher implements Fetcher over net/http.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	breakers *resilience.HostBreakers

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "ticker-ingest/1.0"
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryPolicy()
	}
	if opts.Breaker.FailureThreshold == 0 {
		opts.Breaker = resilience.DefaultBreakerConfig()
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		breakers: resilience.NewHostBreakers(opts.Breaker),
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

// Breakers exposes the per-host circuit breakers.
func (f *HTTPFetcher) Breakers() *resilience.HostBreakers {
	return f.breakers
}

func (f *HTTPFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lim, ok := f.limiters[host]; ok {
		return lim
	}
	perSec, ok := f.opts.HostRates[host]
	if !ok {
		perSec = defaultRate
	}
	burst := max(int(perSec), 1)
	lim := NewAdaptiveLimiter(rate.Limit(perSec), burst)
	f.limiters[host] = lim
	return lim
}

// Download fetches rawURL and returns the body of a 2xx response.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string, opts ...RequestOption) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %s", Redact(rawURL))
	}
	lim := f.limiterFor(u.Host)
	breaker := f.breakers.For(u.Host)

	retry := f.opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.LogRetry(u.Host, u.Path)
	}

	return resilience.Retry(ctx, retry, func(ctx context.Context) (io.ReadCloser, error) {
		return resilience.Guard(ctx, breaker, func(ctx context.Context) (io.ReadCloser, error) {
			return f.once(ctx, lim, rawURL, opts)
		})
	})
}

func (f *HTTPFetcher) once(ctx context.Context, lim *AdaptiveLimiter, rawURL string, opts []RequestOption) (io.ReadCloser, error) {
	if err := lim.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: create request %s", Redact(rawURL))
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	for _, opt := range opts {
		opt(req)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(scrubURLError(err), "fetcher: get %s", Redact(rawURL))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		lim.OnRateLimit()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		_ = resp.Body.Close()
		return nil, statusErr(resp.StatusCode, Redact(rawURL), strings.TrimSpace(string(snippet)))
	}

	lim.OnSuccess()
	return resp.Body, nil
}

// GetJSON fetches rawURL and decodes the JSON body into v.
func (f *HTTPFetcher) GetJSON(ctx context.Context, rawURL string, v any, opts ...RequestOption) error {
	opts = append([]RequestOption{WithHeader("Accept", "application/json")}, opts...)
	body, err := f.Download(ctx, rawURL, opts...)
	if err != nil {
		return err
	}
	defer body.Close() //nolint:errcheck

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return eris.Wrapf(err, "fetcher: decode json from %s", Redact(rawURL))
	}
	return nil
}

// Redact masks credential query parameters in rawURL.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}
	q := u.Query()
	changed := false
	for _, p := range secretParams {
		if q.Has(p) {
			q.Set(p, redactedValue)
			changed = true
		}
	}
	if !changed {
		return rawURL
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// scrubURLError drops the request URL that net/http embeds in transport
// errors, keeping the underlying cause for classification.
func scrubURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
