package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"auth-service/internal/retry"
)

const (
	smsTimeout    = 15 * time.Second
	smsRetries    = 2
	smsRetryDelay = 500 * time.Millisecond
)

// SMSClient sends OTP SMS via an HTTP JSON gateway (Twilio-style POST).
type SMSClient struct {
	APIKey     string
	BaseURL    string
	From       string
	HTTPClient *http.Client
}

// NewSMSClient returns a client that uses the given API key, endpoint, and sender ID.
func NewSMSClient(apiKey, baseURL, from string) *SMSClient {
	return &SMSClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		From:       from,
		HTTPClient: &http.Client{Timeout: smsTimeout},
	}
}

// SendOTP sends the code to the given phone number. phone should be digits
// only (country code + number). Transient failures (network errors, 5xx) are
// retried with backoff; 4xx responses fail immediately. Does not log the code.
func (c *SMSClient) SendOTP(ctx context.Context, phone, code, purpose string) error {
	if c.APIKey == "" || c.BaseURL == "" {
		return fmt.Errorf("sms: gateway not configured")
	}
	body := map[string]interface{}{
		"from": c.From,
		"to":   phone,
		"body": fmt.Sprintf("Your OTP code for %s is: %s", purpose, code),
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	return retry.Do(ctx, smsRetries, smsRetryDelay, 2.0, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("sms: request failed status=%d", resp.StatusCode)
		}
		if resp.StatusCode >= 300 {
			b, _ := io.ReadAll(resp.Body)
			return retry.Permanent(fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b)))
		}
		return nil
	})
}
