package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"zkrent/internal/domain"
)

const (
	defaultTimeout       = 3 * time.Second
	defaultRetryAttempts = 3
	defaultRetryBase     = 200 * time.Millisecond
	defaultRetryMax      = 2 * time.Second
	maxBodyBytes         = 4 << 20
	maxBinaryBytes       = 64 << 20
)

// Client performs JSON calls against peer services with a bounded
// per-attempt timeout. GETs back off exponentially between attempts; POSTs
// are sent once.
type Client struct {
	HTTP *http.Client
	// Header is added to every request, e.g. Authorization.
	Header    http.Header
	Timeout   time.Duration
	Attempts  int
	RetryBase time.Duration
	RetryMax  time.Duration
}

func New(timeout time.Duration, attempts int) *Client {
	return &Client{
		HTTP:      &http.Client{},
		Timeout:   timeout,
		Attempts:  attempts,
		RetryBase: defaultRetryBase,
		RetryMax:  defaultRetryMax,
	}
}

// StatusError is a non-2xx answer from the peer. Body holds the start of
// the response for diagnostics.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Code)
}

func (e *StatusError) retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// GetJSON decodes the response body into out. Failures are reported as
// domain.ErrUpstreamTimeout when the deadline ran out and
// domain.ErrUpstreamUnavailable otherwise.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.get(ctx, url, "application/json", func(body io.Reader) error {
		return decodeJSON(body, out)
	})
}

// GetBytes returns the raw response body, retrying like GetJSON.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := c.get(ctx, url, "application/octet-stream", func(r io.Reader) error {
		data, err := io.ReadAll(io.LimitReader(r, maxBinaryBytes+1))
		if err != nil {
			return err
		}
		if len(data) > maxBinaryBytes {
			return fmt.Errorf("body exceeds %d bytes", maxBinaryBytes)
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, url, accept string, read func(io.Reader) error) error {
	delay := c.retryBase()
	var lastErr error
	for attempt := 0; attempt < c.attempts(); attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, delay); err != nil {
				return classify(err)
			}
			delay *= 2
			if delay > c.retryMax() {
				delay = c.retryMax()
			}
		}
		err := c.getOnce(ctx, url, accept, read)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return classify(ctx.Err())
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.retryable() {
			break
		}
	}
	return classify(lastErr)
}

func (c *Client) getOnce(ctx context.Context, url, accept string, read func(io.Reader) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", accept)
	return c.do(req, read)
}

// PostJSON sends body once and decodes a 2xx answer into out. A non-2xx
// answer is returned as *StatusError without classification so callers can
// read the peer's error payload.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	err = c.do(req, func(body io.Reader) error {
		return decodeJSON(body, out)
	})
	var statusErr *StatusError
	if err == nil || errors.As(err, &statusErr) {
		return err
	}
	return classify(err)
}

func (c *Client) do(req *http.Request, read func(io.Reader) error) error {
	for k, values := range c.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	url := req.URL.String()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		head, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return &StatusError{Method: req.Method, URL: url, Code: resp.StatusCode, Body: head}
	}
	if err := read(resp.Body); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func decodeJSON(body io.Reader, out any) error {
	if out == nil {
		return nil
	}
	return json.NewDecoder(io.LimitReader(body, maxBodyBytes)).Decode(out)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrUpstreamTimeout) || errors.Is(err, domain.ErrUpstreamUnavailable) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

func (c *Client) attempts() int {
	if c.Attempts <= 0 {
		return defaultRetryAttempts
	}
	return c.Attempts
}

func (c *Client) retryBase() time.Duration {
	if c.RetryBase <= 0 {
		return defaultRetryBase
	}
	return c.RetryBase
}

func (c *Client) retryMax() time.Duration {
	if c.RetryMax <= 0 {
		return defaultRetryMax
	}
	return c.RetryMax
}
