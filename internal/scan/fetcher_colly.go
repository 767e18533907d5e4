package scan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"
)

// CollyFetcher implements Fetcher using Colly. Some agency portals sit behind
// aggressive bot filtering that rejects plain net/http clients; Colly's
// browser-like request profile gets through more often. Sources opt in via
// fetch.use_browser in the registry.
type CollyFetcher struct {
	UserAgent       string
	MaxRetries      int
	RequestTimeout  time.Duration
	DomainDelay     time.Duration
	MaxBodySize     int
	IgnoreRobotsTxt bool

	log zerolog.Logger
}

// NewCollyFetcher creates a CollyFetcher with defaults matching the plain
// HTTP fetcher.
func NewCollyFetcher(logger zerolog.Logger) *CollyFetcher {
	return &CollyFetcher{
		UserAgent:      browserUserAgent,
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
		DomainDelay:    1 * time.Second,
		MaxBodySize:    10 * 1024 * 1024,
		log:            logger.With().Str("component", "colly_fetcher").Logger(),
	}
}

// WithConfig applies per-source overrides from the registry.
func (f *CollyFetcher) WithConfig(cfg FetchConfig) Fetcher {
	clone := *f
	if cfg.TimeoutSeconds > 0 {
		clone.RequestTimeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.MaxRetries > 0 {
		clone.MaxRetries = cfg.MaxRetries
	}
	if cfg.RateLimitRPS > 0 {
		clone.DomainDelay = time.Duration(float64(time.Second) / cfg.RateLimitRPS)
	}
	return &clone
}

func (f *CollyFetcher) buildCollector(host string) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
		colly.AllowedDomains(host),
	}
	if f.IgnoreRobotsTxt {
		opts = append(opts, colly.IgnoreRobotsTxt())
	}

	c := colly.NewCollector(opts...)

	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       f.DomainDelay,
		RandomDelay: f.DomainDelay / 2,
	})
	c.SetRequestTimeout(f.RequestTimeout)

	return c
}

// Fetch implements the Fetcher interface.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// colly matches the allow-list against Hostname(), so the port must be
	// stripped or URLs with an explicit port are rejected.
	c := f.buildCollector(parsedURL.Hostname())

	var result *FetchedDocument
	var fetchErr error
	var wg sync.WaitGroup
	wg.Add(1)

	// Completion can be signaled by OnResponse, OnError, or the context
	// watcher; only the first one counts.
	var completed sync.Once
	complete := func() { completed.Do(wg.Done) }

	c.OnResponse(func(r *colly.Response) {
		defer complete()
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(r.Body)),
			FetchedAt:   time.Now(),
			Headers:     map[string][]string(r.Headers.Clone()),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		retries := 0
		if r.Request.Ctx.GetAny("retries") != nil {
			retries = r.Request.Ctx.GetAny("retries").(int)
		}
		if retries < f.MaxRetries {
			r.Request.Ctx.Put("retries", retries+1)
			f.log.Warn().
				Str("url", r.Request.URL.String()).
				Int("attempt", retries+1).
				Err(err).
				Msg("retrying fetch")
			time.Sleep(time.Duration(retries+1) * time.Second)
			r.Request.Retry()
			return
		}
		fetchErr = fmt.Errorf("fetch failed after %d retries: %w", f.MaxRetries, err)
		complete()
	})

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			fetchErr = ctx.Err()
			complete()
		case <-done:
		}
	}()

	if err := c.Visit(targetURL); err != nil {
		close(done)
		return nil, fmt.Errorf("visit failed: %w", err)
	}

	wg.Wait()
	close(done)

	if fetchErr != nil {
		return nil, fetchErr
	}
	if result == nil {
		return nil, fmt.Errorf("no response received for %s", targetURL)
	}

	return result, nil
}
