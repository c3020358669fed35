package issuance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	bulkPath = "/residents/generate-qr-bulk-simple"

	// retryAfterFallback applies when a 429 carries no Retry-After header.
	retryAfterFallback = 5 * time.Minute
)

var ErrMissingCredentials = errors.New("missing bearer credentials")

// Token is one per-resident access credential returned by the backend.
type Token struct {
	UserID          int64  `json:"userId"`
	FirstName       string `json:"firstname"`
	LastName        string `json:"lastname"`
	ApartmentNumber string `json:"apartment_number"`
	AutoLoginURL    string `json:"auto_login_url"`
}

func (t Token) FullName() string {
	return strings.TrimSpace(t.FirstName + " " + t.LastName)
}

// ItemFailure is one resident the backend rejected inside an otherwise
// successful bulk response.
type ItemFailure struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"error"`
}

// BulkTokens is the 1:1 mapping of a successful bulk response.
type BulkTokens struct {
	Tokens   []Token
	Failures []ItemFailure
}

// RateLimitedError aborts the whole run; no token from the request may be
// treated as issued.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// RetryAfterMinutes is the wait in user-facing units, rounded up.
func (e *RateLimitedError) RetryAfterMinutes() int {
	return int(math.Ceil(e.RetryAfter.Minutes()))
}

// RequestError covers transport failures and non-2xx responses other
// than 429. It is fatal for the run.
type RequestError struct {
	StatusCode int
	Detail     string
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("bulk issuance request failed: %s", e.Detail)
	}
	return fmt.Sprintf("bulk issuance returned status %d: %s", e.StatusCode, e.Detail)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type bulkRequest struct {
	UserIDs         []int64 `json:"user_ids"`
	ExpirationHours int     `json:"expiration_hours"`
}

type bulkResponse struct {
	Success bool `json:"success"`
	Data    struct {
		QRTokens    []Token       `json:"qr_tokens"`
		FailedUsers []ItemFailure `json:"failed_users"`
	} `json:"data"`
}

type errorEnvelope struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// IssueBulk sends one batch request for all user ids. It performs no
// retries and caches nothing; outcome classification is the caller's
// only signal.
func (c *Client) IssueBulk(ctx context.Context, bearer string, userIDs []int64, expirationHours int) (*BulkTokens, error) {
	if strings.TrimSpace(bearer) == "" {
		return nil, ErrMissingCredentials
	}

	body, err := json.Marshal(bulkRequest{UserIDs: userIDs, ExpirationHours: expirationHours})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+bulkPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RequestError{Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{StatusCode: resp.StatusCode, Detail: readErrorDetail(resp.Body)}
	}

	var parsed bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &RequestError{StatusCode: resp.StatusCode, Detail: "invalid response body"}
	}
	return &BulkTokens{
		Tokens:   parsed.Data.QRTokens,
		Failures: parsed.Data.FailedUsers,
	}, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return retryAfterFallback
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		return retryAfterFallback
	}
	return time.Duration(seconds) * time.Second
}

func readErrorDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "empty response"
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Detail != "" {
			return envelope.Detail
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
