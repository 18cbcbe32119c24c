// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gocolly/colly/v2"

	"github.com/jobwatch/crawler/internal/crawler"
	"github.com/jobwatch/crawler/internal/metrics"
)

// Config controls collector and retry behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = 10 * time.Second
	}
	return c
}

// Fetcher performs single-page GETs through a cloned Colly collector,
// retrying transient failures with exponential backoff. It holds no state
// across calls.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	cfg = cfg.withDefaults()

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	c.UserAgent = cfg.UserAgent
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(newHTTPTransport())

	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes an HTTP GET with retry. Transient failures (network errors,
// timeouts, 5xx) are retried up to MaxAttempts with exponential backoff;
// permanent failures (4xx) surface immediately. The exhausted attempt's
// error is returned unchanged in kind.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.BackoffBase
	b.MaxInterval = f.cfg.BackoffMax
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.cfg.MaxAttempts-1)), ctx)

	var body string
	operation := func() error {
		text, err := f.fetchOnce(ctx, url)
		if err == nil {
			body = text
			return nil
		}
		if crawler.IsTransientFetch(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, bo); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return "", perm.Err
		}
		return "", err
	}
	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (string, error) {
	var (
		body   string
		status int
	)
	start := time.Now()

	collector := f.baseCollector.Clone()
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = string(r.Body)
	})
	// Colly reports non-2xx statuses through OnError; capture the code so
	// the 4xx/5xx split survives classification.
	collector.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	visitErr := f.runCollector(ctx, collector, url)
	metrics.ObserveFetch(statusClass(status, visitErr), time.Since(start))
	if visitErr != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("fetch canceled: %w", ctx.Err())
		}
		return "", classify(url, status, visitErr)
	}
	return body, nil
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func classify(url string, status int, err error) error {
	transient := true
	if status >= 400 && status < 500 {
		transient = false
	}
	return &crawler.FetchError{
		URL:        url,
		StatusCode: status,
		Transient:  transient,
		Err:        err,
	}
}

func statusClass(status int, err error) string {
	switch {
	case err != nil && status == 0:
		return "network_error"
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "unknown"
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
