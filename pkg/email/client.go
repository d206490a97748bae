package email

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/gomail.v2"

	"github.com/Alijeyrad/simorq_billing/config"
)

// Client sends receipts over SMTP. A disabled client rejects every message
// with ErrDisabled so callers can tell "not configured" from "failed".
type Client struct {
	cfg    Config
	dialer *gomail.Dialer
}

func NewFromCentral(cfg config.EmailConfig) (*Client, error) {
	return New(FromCentralConfig(cfg))
}

func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{cfg: cfg}
	if cfg.Enabled {
		if strings.TrimSpace(cfg.From) == "" || cfg.Host == "" {
			return nil, ErrInvalidMessage{Reason: "from address and smtp host are required"}
		}
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		d.SSL = cfg.ImplicitTLS
		d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
		c.dialer = d
	}
	return c, nil
}

func (c *Client) IsEnabled() bool { return c.cfg.Enabled }

// Send gives up when ctx ends or the configured timeout passes, whichever
// comes first. The SMTP exchange itself cannot be interrupted and finishes
// in the background.
func (c *Client) Send(ctx context.Context, m Message) error {
	if !c.cfg.Enabled {
		return ErrDisabled{}
	}
	msg, err := buildMessage(c.cfg.From, m)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.dialer.DialAndSend(msg) }()

	select {
	case err := <-done:
		if err != nil {
			return ErrSend{Provider: "smtp", Err: err}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMessage(from string, m Message) (*gomail.Message, error) {
	from = strings.TrimSpace(from)
	subject := strings.TrimSpace(m.Subject)
	text, htmlBody := strings.TrimSpace(m.TextBody) != "", strings.TrimSpace(m.HTMLBody) != ""
	switch {
	case from == "":
		return nil, ErrInvalidMessage{Reason: "from is required"}
	case subject == "":
		return nil, ErrInvalidMessage{Reason: "subject is required"}
	case !text && !htmlBody:
		return nil, ErrInvalidMessage{Reason: "a text or html body is required"}
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("Subject", subject)
	for header, addrs := range map[string][]string{"To": m.To, "Cc": m.CC, "Bcc": m.BCC} {
		if clean := cleanAddrs(addrs); len(clean) > 0 {
			msg.SetHeader(header, clean...)
		}
	}
	for k, v := range m.Headers {
		if k, v = strings.TrimSpace(k), strings.TrimSpace(v); k != "" && v != "" {
			msg.SetHeader(k, v)
		}
	}

	switch {
	case text && htmlBody:
		msg.SetBody("text/plain", m.TextBody)
		msg.AddAlternative("text/html", m.HTMLBody)
	case htmlBody:
		msg.SetBody("text/html", m.HTMLBody)
	default:
		msg.SetBody("text/plain", m.TextBody)
	}
	msg.SetDateHeader("Date", time.Now())
	return msg, nil
}

func cleanAddrs(in []string) []string {
	return lo.Compact(lo.Map(in, func(s string, _ int) string { return strings.TrimSpace(s) }))
}
