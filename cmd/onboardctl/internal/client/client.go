package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ExchangeRequest is the pairing exchange API request.
type ExchangeRequest struct {
	PairingCode string `json:"pairing_code"`
}

// ExchangeError describes a non-2xx pairing exchange response.
type ExchangeError struct {
	Status int
	Detail string
}

func (e *ExchangeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("exchange rejected with status %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("exchange rejected with status %d", e.Status)
}

// Superseded reports whether a newer pairing code was already issued for
// this onboarding.
func (e *ExchangeError) Superseded() bool {
	return e.Status == http.StatusGone
}

// ErrorReport is the fire-and-forget error telemetry request body.
type ErrorReport struct {
	SessionID     string `json:"session_id"`
	ErrorType     string `json:"error_type"`
	Detail        string `json:"detail"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Client talks to the VectorPlane platform backend.
type Client struct {
	BaseURL string

	// HTTPClient retries transient failures; the error report and
	// completion callback ride it.
	HTTPClient *http.Client

	// ExchangeHTTPClient never retries. A pairing code is submitted exactly
	// once per call; rejections of any status are handled by re-prompting.
	ExchangeHTTPClient *http.Client
}

// NewClient creates a backend client. Transient 5xx and transport failures
// are retried a few times; 30s to connect, 60s for the whole call.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = 60 * time.Second
	rc.HTTPClient.Transport = &http.Transport{
		DialContext: (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
	}

	std := rc.StandardClient()
	std.Timeout = 60 * time.Second

	return &Client{
		BaseURL:    baseURL,
		HTTPClient: std,
		ExchangeHTTPClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
			},
		},
	}
}

// ExchangeCode submits a pairing code and returns the raw onboarding
// configuration body on success. Non-2xx responses come back as
// *ExchangeError.
func (c *Client) ExchangeCode(code string) ([]byte, error) {
	requestURL, err := url.JoinPath(c.BaseURL, "pairing/exchange")
	if err != nil {
		return nil, fmt.Errorf("failed to join URL: %w", err)
	}

	body, err := json.Marshal(ExchangeRequest{PairingCode: code})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal exchange request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, requestURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.ExchangeHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ExchangeError{
			Status: resp.StatusCode,
			Detail: exchangeDetail(respBody),
		}
	}

	return respBody, nil
}

// exchangeDetail pulls the optional detail message out of a failure body.
func exchangeDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Detail
}

// ReportError delivers one structured error report. Callers treat any
// failure as best-effort; the response body is ignored.
func (c *Client) ReportError(report ErrorReport) error {
	requestURL, err := url.JoinPath(c.BaseURL, "errors/report")
	if err != nil {
		return fmt.Errorf("failed to join URL: %w", err)
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal error report: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, requestURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("error report returned status %d", resp.StatusCode)
	}
	return nil
}

// SendCompletion delivers the signed completion callback. The signature,
// timestamp, and external id ride as request metadata; the payload is the
// exact bytes the signature was computed over.
func (c *Client) SendCompletion(externalID, signature, timestamp string, payload []byte) error {
	requestURL, err := url.JoinPath(c.BaseURL, "onboarding/complete")
	if err != nil {
		return fmt.Errorf("failed to join URL: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, requestURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VectorPlane-Signature", signature)
	req.Header.Set("X-VectorPlane-Timestamp", timestamp)
	req.Header.Set("X-VectorPlane-External-Id", externalID)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("completion callback returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
