// Package httpclient provides the retrying, proxy-aware JSON client used for every
// call to the Stobix API and the auxiliary services.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bardlex/stobixd/internal/proxy"
	"github.com/bardlex/stobixd/pkg/errors"
	"github.com/bardlex/stobixd/pkg/log"
	"github.com/bardlex/stobixd/pkg/retry"
)

// DefaultUserAgents is the pool a User-Agent is drawn from for each request
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/105.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Firefox/102.0",
}

const maxLoggedBody = 1024

// Config holds client settings
type Config struct {
	Timeout    time.Duration
	Retry      *retry.Config
	Origin     string
	Referer    string
	UserAgents []string
}

// DefaultConfig returns the settings used against the Stobix API
func DefaultConfig() Config {
	return Config{
		Timeout:    60 * time.Second,
		Retry:      retry.DefaultConfig(),
		Origin:     "https://app.stobix.com",
		Referer:    "https://app.stobix.com/",
		UserAgents: DefaultUserAgents,
	}
}

// Request describes one logical call. Body is marshalled as JSON when non-nil.
type Request struct {
	Method string
	URL    string
	Body   any
	Token  string
}

// Response is a successful (2xx) reply
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Doer executes logical requests; *Client is the HTTP implementation.
type Doer interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

// Client issues requests through one proxy adapter with retry and backoff
type Client struct {
	config  Config
	resty   *resty.Client
	adapter *proxy.Adapter
	logger  *log.Logger
}

// New creates a client whose connections go through adapter (nil means direct)
func New(config Config, adapter *proxy.Adapter, logger *log.Logger) *Client {
	if adapter == nil {
		adapter = proxy.Direct()
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Retry == nil {
		config.Retry = retry.DefaultConfig()
	}
	if len(config.UserAgents) == 0 {
		config.UserAgents = DefaultUserAgents
	}

	r := resty.New().
		SetTransport(adapter.Transport()).
		SetTimeout(config.Timeout)

	return &Client{
		config:  config,
		resty:   r,
		adapter: adapter,
		logger:  logger.WithComponent("httpclient"),
	}
}

// Adapter returns the proxy adapter the client was built with
func (c *Client) Adapter() *proxy.Adapter {
	return c.adapter
}

// Execute performs req, retrying transport failures and non-2xx replies.
// Intermediate failures are logged and swallowed; the final one is returned.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	headers := c.headers(req.Token)

	policy := *c.config.Retry
	var last *attemptError
	policy.OnRetry = func(attempt int, delay time.Duration, _ error) {
		c.logger.LogRequestRetry(req.URL, attempt, policy.MaxAttempts, delay, last.message)
	}

	resp, err := retry.DoWithResult(ctx, &policy, func() (*Response, error) {
		resp, aerr := c.attempt(ctx, req, headers)
		if aerr != nil {
			last = aerr
			return nil, aerr.toServiceError(req.URL)
		}
		return resp, nil
	})
	if err == nil {
		return resp, nil
	}

	if ctx.Err() != nil || last == nil {
		return nil, err
	}

	final := last.toServiceError(req.URL)
	logger := c.logger.WithFields("url", req.URL, "message", last.message)
	if last.status != 0 {
		logger = logger.WithFields(
			"status", last.status,
			"headers", last.header,
			"body", truncate(last.body, maxLoggedBody),
		)
	}
	logger.Error("request failed")

	return nil, final
}

type attemptError struct {
	message string
	status  int
	header  http.Header
	body    []byte
	cause   error
}

func (e *attemptError) toServiceError(url string) *errors.ServiceError {
	se := errors.New(errors.ErrorTypeTransport, "http_request",
		fmt.Sprintf("request failed for %s: %s", url, e.message)).
		WithContext("url", url)
	if e.cause != nil {
		se.Cause = e.cause
		// Per-request timeouts are retried; cancellation of the run is not
		se.Retryable = !errors.Is(e.cause, context.Canceled)
	}
	if e.status != 0 {
		se.WithContext("status", e.status).WithContext("headers", e.header)
	}
	return se
}

func (c *Client) attempt(ctx context.Context, req Request, headers map[string]string) (*Response, *attemptError) {
	r := c.resty.R().
		SetContext(ctx).
		SetHeaders(headers)
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	method := req.Method
	if method == "" {
		method = resty.MethodGet
	}

	resp, err := r.Execute(method, req.URL)
	if err != nil {
		return nil, &attemptError{message: err.Error(), cause: err}
	}

	if !resp.IsSuccess() {
		fallback := fmt.Sprintf("request failed with status code %d", resp.StatusCode())
		return nil, &attemptError{
			message: ExtractErrorMessage(resp.Body(), fallback),
			status:  resp.StatusCode(),
			header:  resp.Header(),
			body:    resp.Body(),
		}
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}

func (c *Client) headers(token string) map[string]string {
	h := map[string]string{
		"User-Agent":   c.config.UserAgents[rand.Intn(len(c.config.UserAgents))],
		"Accept":       "application/json, text/plain, */*",
		"Content-Type": "application/json",
	}
	if c.config.Origin != "" {
		h["Origin"] = c.config.Origin
	}
	if c.config.Referer != "" {
		h["Referer"] = c.config.Referer
	}
	if token != "" {
		h["Authorization"] = "Bearer " + token
	}
	return h
}

// ExtractErrorMessage picks the most useful description of a failed reply:
// the JSON "message" field, then "error", then the raw text, then fallback.
func ExtractErrorMessage(body []byte, fallback string) string {
	if len(body) == 0 {
		return fallback
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "invalid response: " + truncate(body, 200)
	}

	for _, key := range []string{"message", "error"} {
		switch v := payload[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case nil:
		default:
			if b, err := json.Marshal(v); err == nil {
				return string(b)
			}
		}
	}
	return fallback
}

// DecodeJSON unmarshals a response body into T
func DecodeJSON[T any](resp *Response) (T, error) {
	var out T
	if resp == nil {
		return out, errors.New(errors.ErrorTypeValidation, "decode_json", "nil response")
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, errors.Wrap(err, errors.ErrorTypeValidation, "decode_json",
			"failed to decode response body").WithContext("body", truncate(resp.Body, 200))
	}
	return out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
