package scan

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"time"
)

var blockedPrefixStrings = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var blockedPrefixes = func() []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(blockedPrefixStrings))
	for _, s := range blockedPrefixStrings {
		if p, err := netip.ParsePrefix(s); err == nil {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}()

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// HTTPFetcher retrieves agency forecast pages with retries, backoff, and a
// per-domain rate limit. Agency portals are slow and flaky; a fetch that
// cannot complete inside the configured timeout is treated like any other
// fetch failure by the caller.
type HTTPFetcher struct {
	defaultConfig FetchConfig

	mu       sync.Mutex
	clients  map[string]*http.Client
	limiters map[string]*time.Ticker
}

// NewHTTPFetcher creates a fetcher with the given defaults. Zero values fall
// back to 30s timeout, 3 retries, 1 request/second.
func NewHTTPFetcher(defaultConfig FetchConfig) *HTTPFetcher {
	if defaultConfig.TimeoutSeconds == 0 {
		defaultConfig.TimeoutSeconds = 30
	}
	if defaultConfig.MaxRetries == 0 {
		defaultConfig.MaxRetries = 3
	}
	if defaultConfig.RateLimitRPS == 0 {
		defaultConfig.RateLimitRPS = 1.0
	}

	return &HTTPFetcher{
		defaultConfig: defaultConfig,
		clients:       make(map[string]*http.Client),
		limiters:      make(map[string]*time.Ticker),
	}
}

func (f *HTTPFetcher) client(domain string) (*http.Client, *time.Ticker) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[domain]; ok {
		return client, f.limiters[domain]
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           safeDialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client := &http.Client{
		Timeout:       time.Duration(f.defaultConfig.TimeoutSeconds) * time.Second,
		Transport:     transport,
		CheckRedirect: safeCheckRedirect,
	}
	f.clients[domain] = client

	interval := time.Duration(float64(time.Second) / f.defaultConfig.RateLimitRPS)
	if interval <= 0 {
		interval = time.Second
	}
	f.limiters[domain] = time.NewTicker(interval)

	return client, f.limiters[domain]
}

// WithConfig returns a fetcher whose defaults are overridden by a source's
// fetch block. Zero-valued fields keep this fetcher's defaults.
func (f *HTTPFetcher) WithConfig(cfg FetchConfig) Fetcher {
	merged := f.defaultConfig
	if cfg.TimeoutSeconds > 0 {
		merged.TimeoutSeconds = cfg.TimeoutSeconds
	}
	if cfg.MaxRetries > 0 {
		merged.MaxRetries = cfg.MaxRetries
	}
	if cfg.RateLimitRPS > 0 {
		merged.RateLimitRPS = cfg.RateLimitRPS
	}
	return NewHTTPFetcher(merged)
}

// Fetch implements the Fetcher interface with rate limiting and retries.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*FetchedDocument, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	client, limiter := f.client(u.Host)
	if limiter != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-limiter.C:
		}
	}

	var lastErr error
	for attempt := 0; attempt <= f.defaultConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 0.5s, 1s, 2s + jitter
			backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			jitter := time.Duration(rand.Intn(100)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", browserUserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")
		req.Header.Set("Cache-Control", "no-cache")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			if shouldRetry(err, 0) {
				continue
			}
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			return &FetchedDocument{
				URL:         rawURL,
				StatusCode:  resp.StatusCode,
				ContentType: resp.Header.Get("Content-Type"),
				Body:        resp.Body,
				FetchedAt:   time.Now(),
				Headers:     resp.Header,
			}, nil
		}

		resp.Body.Close()
		if shouldRetry(nil, resp.StatusCode) {
			lastErr = fmt.Errorf("status code %d", resp.StatusCode)
			continue
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// safeDialContext wraps the default dialer to block private IPs.
func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("blocked private IP: %s", ip)
		}
	}

	return d.DialContext(ctx, network, addr)
}

func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}

	addr, ok := netip.AddrFromSlice(ip)
	if ok {
		for _, prefix := range blockedPrefixes {
			if prefix.Contains(addr.Unmap()) {
				return true
			}
		}
	}

	return false
}

// safeCheckRedirect limits redirects and validates destinations.
func safeCheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if req.URL == nil || (req.URL.Scheme != "http" && req.URL.Scheme != "https") {
		return fmt.Errorf("redirect scheme blocked")
	}

	host := req.URL.Hostname()
	if host == "" {
		return fmt.Errorf("redirect host missing")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".local") {
		return fmt.Errorf("redirect to internal host blocked")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("redirect to private IP blocked: %s", ip)
		}
	}

	return nil
}

func shouldRetry(err error, statusCode int) bool {
	if err != nil {
		if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
			return true
		}
		return false
	}

	switch statusCode {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
