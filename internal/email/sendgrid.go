package email

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

const sendGridEndpoint = "/v3/mail/send"

// SendGridClient delivers email through the SendGrid v3 API.
type SendGridClient struct {
	client *rest.Client
	apiKey string
	host   string
	sender *mail.Email
}

// NewSendGridClient builds a client whose requests time out after timeout.
// host is the API origin, usually https://api.sendgrid.com.
func NewSendGridClient(host string, sender domain.SubscriberEmail, apiKey string, timeout time.Duration) *SendGridClient {
	return &SendGridClient{
		client: &rest.Client{HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}},
		apiKey: apiKey,
		host:   strings.TrimRight(host, "/"),
		sender: mail.NewEmail("", sender.String()),
	}
}

// Send implements Client.
func (c *SendGridClient) Send(ctx context.Context, recipient domain.SubscriberEmail, subject, htmlBody, textBody string) error {
	msg := mail.NewSingleEmail(c.sender, subject, mail.NewEmail("", recipient.String()), textBody, htmlBody)

	req := sendgrid.GetRequest(c.apiKey, sendGridEndpoint, c.host)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(msg)

	resp, err := c.client.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("email provider returned %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}
