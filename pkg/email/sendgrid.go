package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/rentalhub-backend/pkg/config"
)

const defaultTimeout = 10 * time.Second

var errAPIKeyRequired = errors.New("sendgrid api key is required")

// Message is a single plain/HTML email to one recipient.
type Message struct {
	ToEmail   string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type sendFunc func(ctx context.Context, email *mail.SGMailV3) (int, string, error)

// SendGridClient sends email through the SendGrid v3 API.
type SendGridClient struct {
	fromEmail string
	fromName  string
	timeout   time.Duration
	send      sendFunc
}

// NewSendGridClient validates configuration and builds a client.
func NewSendGridClient(cfg config.SendgridConfig) (*SendGridClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if strings.TrimSpace(cfg.DefaultFrom) == "" {
		return nil, errors.New("sendgrid from address is required")
	}
	api := sendgrid.NewSendClient(apiKey)
	return newClient(cfg, func(ctx context.Context, email *mail.SGMailV3) (int, string, error) {
		resp, err := api.SendWithContext(ctx, email)
		if err != nil {
			return 0, "", err
		}
		return resp.StatusCode, resp.Body, nil
	}), nil
}

func newClient(cfg config.SendgridConfig, send sendFunc) *SendGridClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &SendGridClient{
		fromEmail: cfg.DefaultFrom,
		fromName:  cfg.FromName,
		timeout:   timeout,
		send:      send,
	}
}

// Send delivers msg, treating any 4xx/5xx response as a failure.
func (c *SendGridClient) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.ToEmail) == "" {
		return errors.New("recipient email is required")
	}
	if msg.PlainText == "" && msg.HTML == "" {
		return errors.New("email body is required")
	}
	from := mail.NewEmail(c.fromName, c.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	email := mail.NewSingleEmail(from, msg.Subject, to, msg.PlainText, msg.HTML)

	sendCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status, body, err := c.send(sendCtx, email)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if status >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", status, body)
	}
	return nil
}
