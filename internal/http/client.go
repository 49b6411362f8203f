package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/handiism/tidal-downloader/internal/manifest"
)

// DefaultUserAgent is sent when Options.UserAgent is empty.
const DefaultUserAgent = "TIDAL_ANDROID/1039 okhttp/3.14.9"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Options configures a Client.
type Options struct {
	// Timeout bounds a whole request, body included. Zero means no limit;
	// segment fetches carry their own per-attempt deadline.
	Timeout time.Duration

	UserAgent string

	// RequestsPerSecond throttles every request made through the client.
	// Zero disables throttling.
	RequestsPerSecond float64
	Burst             int

	// Proxy is an optional proxy URL, e.g. "http://127.0.0.1:8080".
	Proxy string

	// DisableProxy ignores the proxy environment variables.
	DisableProxy bool

	Logger *slog.Logger
}

// Client wraps HTTP operations for the Tidal API and its CDNs.
//
// Client provides:
//   - A configured User-Agent header
//   - Optional request throttling shared by every caller
//   - OpenTelemetry client spans for each request
//   - Byte-range segment downloads
//
// Example usage:
//
//	client := NewClient(Options{RequestsPerSecond: 10})
//
//	var album dto.Album
//	err := client.GetJSON(ctx, "https://api.tidal.com/v1/albums/1?countryCode=US", header, &album)
//
//	data, err := client.FetchSegment(ctx, segmentURL, nil)
type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

// StatusError is returned for any response outside the 2xx range.
type StatusError struct {
	Code   int
	Status string
	URL    string
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("HTTP %d %s: %s", e.Code, http.StatusText(e.Code), redact(e.URL))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// StatusCode returns the HTTP status code.
func (e *StatusError) StatusCode() int { return e.Code }

// NewClient creates a new HTTP client.
//
// An invalid proxy URL is logged and ignored. With no proxy configured the
// standard proxy environment variables apply.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.DisableProxy {
		transport.Proxy = nil
	} else if proxy := strings.TrimSpace(opts.Proxy); proxy != "" {
		parsed, err := url.Parse(proxy)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			if err == nil {
				err = errors.New("missing scheme or host")
			}
			logger.Warn("invalid proxy url; proxy disabled", slog.String("error", err.Error()))
		} else {
			transport.Proxy = http.ProxyURL(parsed)
		}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		userAgent: userAgent,
		limiter:   limiter,
	}
}

// Do sends req after waiting for the rate limiter. Any status outside the
// 2xx range is turned into a *StatusError and the body is closed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Code:   resp.StatusCode,
			Status: resp.Status,
			URL:    req.URL.String(),
			Body:   strings.TrimSpace(string(body)),
		}
	}
	return resp, nil
}

// Get performs a GET request and returns the response body as bytes.
//
// header may be nil. Returns a *StatusError if the response status is not
// 2xx.
//
// Example:
//
//	data, err := client.Get(ctx, "https://resources.tidal.com/images/ab/cd/1280x1280.jpg", nil)
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// GetJSON performs a GET request and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, v any) error {
	body, err := c.Get(ctx, rawURL, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", redact(rawURL), err)
	}
	return nil
}

// FetchSegment downloads one media segment. When rng is set only that
// byte range is requested; a server ignoring the Range header is
// tolerated by slicing the full body.
func (c *Client) FetchSegment(ctx context.Context, location string, rng *manifest.ByteRange) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	if rng != nil {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", rng.Offset, rng.Offset+rng.Length-1))
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if rng != nil && resp.StatusCode == http.StatusOK {
		end := rng.Offset + rng.Length
		if int64(len(data)) < end {
			return nil, fmt.Errorf("range %d-%d beyond body of %d bytes", rng.Offset, end-1, len(data))
		}
		data = data[rng.Offset:end]
	}
	return data, nil
}

// redact drops the query string, which carries signed tokens.
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
