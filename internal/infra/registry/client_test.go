package registry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"zkrent/internal/domain"
	"zkrent/internal/infra/upstream"
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

func newTestClient(rt roundTripperFunc) *Client {
	return NewClient("http://registry.local/", &upstream.Client{
		HTTP:      &http.Client{Transport: rt},
		Timeout:   50 * time.Millisecond,
		Attempts:  2,
		RetryBase: time.Millisecond,
	})
}

func TestClient_IsRevoked(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/check" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		q := req.URL.Query()
		if q.Get("attestationId") != "att-1" || q.Get("issuer") != "employer" {
			t.Fatalf("unexpected query %s", req.URL.RawQuery)
		}
		return jsonResponse(http.StatusOK, `{"attestationId":"att-1","issuer":"employer","isRevoked":true}`), nil
	})
	revoked, err := c.IsRevoked(context.Background(), "att-1", "employer")
	if err != nil {
		t.Fatalf("is revoked: %v", err)
	}
	if !revoked {
		t.Fatalf("expected revoked")
	}
}

func TestClient_ErrorsAreNotNotRevoked(t *testing.T) {
	c := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, `{}`), nil
	})
	revoked, err := c.IsRevoked(context.Background(), "att-1", "employer")
	if err == nil {
		t.Fatalf("expected error, got revoked=%v", revoked)
	}
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}
}
