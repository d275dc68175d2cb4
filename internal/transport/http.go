// Package transport executes outbound HTTP requests and local commands.
//
// Both transports log what they do through a redacting logger so that API
// keys in query strings and passwords in argument lists never reach a log.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pendergraft/sitelaunch/internal/logging"
)

// ErrHTTPStatus is returned for non-2xx responses
var ErrHTTPStatus = errors.New("unexpected HTTP status")

// maxBodySize caps how much of a registrar response is read into memory
const maxBodySize = 10 << 20

// HTTPClient performs rate-limited requests against registrar APIs
type HTTPClient struct {
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
	redactor *logging.Redactor
}

// HTTPOption configures an HTTPClient
type HTTPOption func(*HTTPClient)

// WithHTTPClient sets a custom underlying client
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		h.client = c
	}
}

// WithRequestsPerMinute limits outbound request rate. Zero disables limiting.
func WithRequestsPerMinute(n int) HTTPOption {
	return func(h *HTTPClient) {
		if n <= 0 {
			h.limiter = nil
			return
		}
		// Convert requests per minute to rate.Limit (requests per second)
		h.limiter = rate.NewLimiter(rate.Limit(float64(n)/60.0), 1)
	}
}

// WithLogger sets the logger and the redactor applied to logged URLs
func WithLogger(logger *slog.Logger, redactor *logging.Redactor) HTTPOption {
	return func(h *HTTPClient) {
		h.logger = logger
		h.redactor = redactor
	}
}

// NewHTTPClient creates an HTTP transport with the given timeout
func NewHTTPClient(timeout time.Duration, opts ...HTTPOption) *HTTPClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	h := &HTTPClient{
		client: &http.Client{Timeout: timeout},
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Get issues a GET to endpoint with the query params appended and returns the body
func (h *HTTPClient) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return h.do(req)
}

// PostForm issues a form-encoded POST, used for requests too long for a query string
func (h *HTTPClient) PostForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req)
}

// Do sends an arbitrary request through the limiter and logger. The caller
// owns the returned response body.
func (h *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Debug("http request failed",
			"method", req.Method,
			"url", h.redactor.Redact(req.URL.String()),
			"error", h.redactor.Redact(err.Error()),
		)
		// url.Error embeds the full URL, which may carry an API key
		return nil, fmt.Errorf("%s %s: %s", req.Method, h.redactor.Redact(req.URL.Redacted()), h.redactor.Redact(unwrapURLError(err).Error()))
	}

	h.logger.Debug("http request",
		"method", req.Method,
		"url", h.redactor.Redact(req.URL.String()),
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	return resp, nil
}

func (h *HTTPClient) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json, application/xml")

	resp, err := h.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, fmt.Errorf("%w: %s", ErrHTTPStatus, resp.Status)
	}
	return body, nil
}

func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
