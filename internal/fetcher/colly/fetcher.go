// Package collyfetcher implements release.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/booktrail/release-crawler/internal/ratelimit"
	"github.com/booktrail/release-crawler/internal/release"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	PerDomainRPS float64
	Burst        int
}

// Fetcher executes single-page HTTP GETs through a shared Colly collector
// with per-domain rate limiting.
type Fetcher struct {
	cfg           Config
	limiter       *ratelimit.Limiter
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = false
	c.WithTransport(newRobotsCacheTransport(newHTTPTransport()))

	return &Fetcher{
		cfg:           cfg,
		limiter:       ratelimit.New(ratelimit.Config{DefaultRPS: cfg.PerDomainRPS, DefaultBurst: cfg.Burst}),
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Transport failures return an error;
// HTTP error statuses come back as a normal response so callers can decide
// what a 404 or 429 means for them.
func (f *Fetcher) Fetch(ctx context.Context, url string) (release.FetchResponse, error) {
	if err := f.limiter.Wait(ctx, url); err != nil {
		return release.FetchResponse{}, err
	}

	var (
		result   release.FetchResponse
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = release.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		// Colly reports non-2xx statuses here; keep the response.
		if r != nil && r.StatusCode > 0 {
			result = release.FetchResponse{
				URL:        r.Request.URL.String(),
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
			}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return release.FetchResponse{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return release.FetchResponse{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		if result.StatusCode != 0 {
			return result, nil
		}
		if err != nil {
			return release.FetchResponse{}, fmt.Errorf("fetch %s: %w", url, err)
		}
		return result, nil
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
