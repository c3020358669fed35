package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
)

type errorResponse struct {
	Error string `json:"error"`
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func TestCredentialGenerationFlow(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run")
	}
	consoleURL := getenv("CONSOLE_HTTP_ADDR", "http://127.0.0.1:8084")
	adminToken := os.Getenv("CONSOLE_ADMIN_TOKEN")
	if adminToken == "" {
		t.Skip("set CONSOLE_ADMIN_TOKEN to run")
	}

	payload := map[string]interface{}{
		"unit_name": "Torre Norte",
		"user_ids":  []int64{1, 2, 3},
		"mode":      "pdf",
		"confirmed": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, consoleURL+"/credentials/generate", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if got := resp.Header.Get("Content-Type"); got != "application/pdf" {
			t.Fatalf("unexpected content type %q", got)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read artifact: %v", err)
		}
		if !bytes.HasPrefix(data, []byte("%PDF")) {
			t.Fatalf("expected PDF artifact")
		}
	case http.StatusTooManyRequests:
		var parsed errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			t.Fatalf("decode 429 body: %v", err)
		}
		if parsed.Error != "rate_limited" {
			t.Fatalf("unexpected 429 error code %q", parsed.Error)
		}
	default:
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}
