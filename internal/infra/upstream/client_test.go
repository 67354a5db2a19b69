package upstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"zkrent/internal/domain"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func testClient(rt roundTripperFunc) *Client {
	return &Client{
		HTTP:      &http.Client{Transport: rt},
		Timeout:   50 * time.Millisecond,
		Attempts:  3,
		RetryBase: time.Millisecond,
		RetryMax:  2 * time.Millisecond,
	}
}

func TestGetJSON_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := testClient(func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return jsonResponse(http.StatusBadGateway, `{}`), nil
		}
		return jsonResponse(http.StatusOK, `{"isRevoked":true}`), nil
	})

	var out struct {
		IsRevoked bool `json:"isRevoked"`
	}
	if err := c.GetJSON(context.Background(), "http://registry/check", &out); err != nil {
		t.Fatalf("get json: %v", err)
	}
	if !out.IsRevoked || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected success on third attempt, calls=%d", calls)
	}
}

func TestGetJSON_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	c := testClient(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(http.StatusNotFound, `{}`), nil
	})
	err := c.GetJSON(context.Background(), "http://issuer/public-info", &struct{}{})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestGetJSON_TimeoutIsDistinct(t *testing.T) {
	c := testClient(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	err := c.GetJSON(context.Background(), "http://registry/check", &struct{}{})
	if !errors.Is(err, domain.ErrUpstreamTimeout) {
		t.Fatalf("expected upstream timeout, got %v", err)
	}
	if errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("timeout must not also report unavailable")
	}
}

func TestGetJSON_TransportErrorIsUnavailable(t *testing.T) {
	c := testClient(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	err := c.GetJSON(context.Background(), "http://registry/check", &struct{}{})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
	if !domain.IsRetryable(err) {
		t.Fatalf("expected retryable error")
	}
}

func TestPostJSON_SentOnceWithHeaders(t *testing.T) {
	var calls int32
	c := testClient(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		if req.Method != http.MethodPost || req.Header.Get("Authorization") != "Bearer t" {
			return jsonResponse(http.StatusBadRequest, `{}`), nil
		}
		body, _ := io.ReadAll(req.Body)
		if string(body) != `{"subjectId":"renter-001"}` {
			return jsonResponse(http.StatusBadRequest, `{}`), nil
		}
		return jsonResponse(http.StatusCreated, `{"salt":"42"}`), nil
	})
	c.Header = http.Header{"Authorization": []string{"Bearer t"}}

	var out struct {
		Salt string `json:"salt"`
	}
	if err := c.PostJSON(context.Background(), "http://employer/attest-income", map[string]string{"subjectId": "renter-001"}, &out); err != nil {
		t.Fatalf("post json: %v", err)
	}
	if out.Salt != "42" || atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("unexpected result salt=%q calls=%d", out.Salt, calls)
	}
}

func TestPostJSON_ServerErrorKeepsBody(t *testing.T) {
	var calls int32
	c := testClient(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(http.StatusServiceUnavailable, `{"code":"UPSTREAM_UNAVAILABLE"}`), nil
	})

	err := c.PostJSON(context.Background(), "http://verifier/verify-proofs", struct{}{}, nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected status error, got %v", err)
	}
	if statusErr.Code != http.StatusServiceUnavailable || !bytes.Contains(statusErr.Body, []byte("UPSTREAM_UNAVAILABLE")) {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("post must not be retried, calls=%d", calls)
	}
}

func TestGetBytes_ReturnsRawBodyAndRetries(t *testing.T) {
	var calls int32
	c := testClient(func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Accept") != "application/octet-stream" {
			t.Errorf("accept = %q", req.Header.Get("Accept"))
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			return jsonResponse(http.StatusServiceUnavailable, `{}`), nil
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte{0x00, 0x01, 0xff})),
		}, nil
	})
	got, err := c.GetBytes(context.Background(), "http://issuer/circuit/proving-key")
	if err != nil {
		t.Fatalf("get bytes: %v", err)
	}
	if !bytes.Equal(got, []byte{0x00, 0x01, 0xff}) || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("unexpected body %x after %d calls", got, calls)
	}
}
