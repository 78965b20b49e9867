package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/boddenberg/securebank-go/internal/domain"
	"github.com/boddenberg/securebank-go/internal/infra/resilience"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

// mailAPIRequest is the JSON body accepted by transactional mail APIs of the
// Resend/Postmark family.
type mailAPIRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	Text    string            `json:"text"`
	HTML    string            `json:"html,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// MailAPIClient sends email through an HTTP mail provider. Retries and the
// circuit breaker live in mail.Resilient; this client reports 4xx answers
// (other than 429) as permanent so they are not retried.
type MailAPIClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// NewMailAPIClient creates a new MailAPIClient posting to endpoint.
func NewMailAPIClient(httpClient *http.Client, endpoint, apiKey string) *MailAPIClient {
	return &MailAPIClient{
		httpClient: httpClient,
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

// Send posts msg to the provider.
func (c *MailAPIClient) Send(ctx context.Context, msg *domain.MailMessage) error {
	ctx, span := tracer.Start(ctx, "MailAPIClient.Send")
	defer span.End()
	span.SetAttributes(attribute.String("mail.kind", msg.Kind))

	body, err := json.Marshal(mailAPIRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.TextBody,
		HTML:    msg.HTMLBody,
		Tags:    map[string]string{"kind": msg.Kind},
	})
	if err != nil {
		return resilience.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.ID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	statusErr := fmt.Errorf("mail API returned status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return resilience.Permanent(statusErr)
	}
	return statusErr
}
