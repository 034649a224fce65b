// Package mail sends transactional email through a Plunk-compatible HTTP
// provider. The core only ever sends one kind of message: the email claim
// verification code.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sender dispatches email. Handlers depend on this interface so tests can
// substitute a recorder.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Client talks to a Plunk-compatible send endpoint.
type Client struct {
	apiKey string
	apiURL string
	from   string
	http   *http.Client
}

// NewClient creates a mail client. apiURL and from may be empty to use the
// provider defaults.
func NewClient(apiKey, apiURL, from string) *Client {
	if apiURL == "" {
		apiURL = "https://api.useplunk.com/v1/send"
	}
	return &Client{
		apiKey: apiKey,
		apiURL: apiURL,
		from:   from,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

type sendBody struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    string `json:"from,omitempty"`
}

// Send dispatches a plain-text email. The request is bounded by the client
// timeout and the caller's context.
func (c *Client) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(sendBody{To: to, Subject: subject, Body: body, From: c.from})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(detail) > 0 {
			return fmt.Errorf("mail send failed: status=%d body=%s", resp.StatusCode, detail)
		}
		return fmt.Errorf("mail send failed: status=%d", resp.StatusCode)
	}
	return nil
}

// SendVerificationCode emails a claim code to the given address.
func SendVerificationCode(ctx context.Context, sender Sender, to, code string) error {
	subject := "Your MindList verification code"
	body := fmt.Sprintf("Your verification code is: %s\n\nIt expires in 15 minutes.", code)
	return sender.Send(ctx, to, subject, body)
}
