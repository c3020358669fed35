package issuance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueBulkSuccessMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/residents/generate-qr-bulk-simple" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token-1" {
			t.Fatalf("missing bearer header")
		}
		var req struct {
			UserIDs         []int64 `json:"user_ids"`
			ExpirationHours int     `json:"expiration_hours"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.UserIDs) != 3 || req.ExpirationHours != 48 {
			t.Fatalf("unexpected request payload: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"data": {
				"qr_tokens": [
					{"userId": 1, "firstname": "Ana", "lastname": "Lopez", "apartment_number": "101", "auto_login_url": "https://c.test/a/1"},
					{"userId": 2, "firstname": "Luis", "lastname": "Marin", "apartment_number": "102", "auto_login_url": "https://c.test/a/2"}
				],
				"failed_users": [{"user_id": 3, "error": "user inactive"}]
			}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	result, err := client.IssueBulk(context.Background(), "token-1", []int64{1, 2, 3}, 48)
	if err != nil {
		t.Fatalf("issue error: %v", err)
	}
	if len(result.Tokens) != 2 || len(result.Failures) != 1 {
		t.Fatalf("unexpected result: %d tokens, %d failures", len(result.Tokens), len(result.Failures))
	}
	if result.Tokens[0].FullName() != "Ana Lopez" {
		t.Fatalf("unexpected full name %q", result.Tokens[0].FullName())
	}
	if result.Failures[0].UserID != 3 || result.Failures[0].Reason != "user inactive" {
		t.Fatalf("unexpected failure mapping: %+v", result.Failures[0])
	}
}

func TestIssueBulkRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "90")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.IssueBulk(context.Background(), "token-1", []int64{1}, 48)
	var rateLimited *RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rateLimited.RetryAfter != 90*time.Second {
		t.Fatalf("expected retry after 90s, got %s", rateLimited.RetryAfter)
	}
	if rateLimited.RetryAfterMinutes() != 2 {
		t.Fatalf("expected 2 minutes rounded up, got %d", rateLimited.RetryAfterMinutes())
	}
}

func TestIssueBulkRateLimitedWithoutHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.IssueBulk(context.Background(), "token-1", []int64{1}, 48)
	var rateLimited *RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if rateLimited.RetryAfter != 5*time.Minute {
		t.Fatalf("expected 5m fallback, got %s", rateLimited.RetryAfter)
	}
}

func TestIssueBulkServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail": "upstream unavailable"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.IssueBulk(context.Background(), "token-1", []int64{1}, 48)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.StatusCode != http.StatusBadGateway || reqErr.Detail != "upstream unavailable" {
		t.Fatalf("unexpected request error: %+v", reqErr)
	}
}

func TestIssueBulkMissingBearer(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", time.Second)
	_, err := client.IssueBulk(context.Background(), "  ", []int64{1}, 48)
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestIssueBulkCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.IssueBulk(ctx, "token-1", []int64{1}, 48)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
