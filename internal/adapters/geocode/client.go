package geocode

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"staybook/internal/adapters/observability"
)

var (
	ErrNotFound     = errors.New("geocode: not found")
	ErrUnauthorized = errors.New("geocode: unauthorized")
	ErrForbidden    = errors.New("geocode: forbidden")
)

const maxAttempts = 4

// Client talks to a Nominatim-compatible search endpoint.
type Client struct {
	base string
	hc   *http.Client
	ua   string
	rl   *rate.Limiter
}

func New(base, userAgent string, rps int) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("geocoder base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("geocoder base URL: %w", err)
	}
	if rps <= 0 {
		rps = 1
	}
	if userAgent == "" {
		userAgent = "staybook/1.0"
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 10 * time.Second},
		ua:   userAgent,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode resolves a free-form location to coordinates of the best match.
func (c *Client) Geocode(ctx context.Context, query string) (float64, float64, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return 0, 0, ErrNotFound
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("limit", "1")

	var out []place
	if err := c.get(ctx, c.base+"/search?"+q.Encode(), &out); err != nil {
		return 0, 0, err
	}
	if len(out) == 0 {
		return 0, 0, ErrNotFound
	}
	lat, err := strconv.ParseFloat(out[0].Lat, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode: bad lat %q: %w", out[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(out[0].Lon, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("geocode: bad lon %q: %w", out[0].Lon, err)
	}
	return lat, lon, nil
}

// get performs a rate-limited GET and decodes JSON into out.
// 429 and transient 5xx are retried, honoring Retry-After when present.
func (c *Client) get(ctx context.Context, u string, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.ua)

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("geocoder", "search", 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < maxAttempts-1 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("geocoder", "search", resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case http.StatusUnauthorized:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusForbidden:
			resp.Body.Close()
			return ErrForbidden

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("geocode: remote %d", resp.StatusCode)
			if i < maxAttempts-1 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("geocode: bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return lastErr
}

// sleepCtx waits for d; false means ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). 0 if absent or invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles from 200ms per attempt with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
