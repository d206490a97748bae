package email

import (
	"time"

	"github.com/Alijeyrad/simorq_billing/config"
)

const defaultTimeout = 30 * time.Second

type Config struct {
	Enabled bool
	From    string

	Host     string
	Port     int
	Username string
	Password string
	// ImplicitTLS dials with TLS from the first byte (port 465 style).
	// Otherwise STARTTLS is used when the server offers it.
	ImplicitTLS bool
	Timeout     time.Duration
}

func FromCentralConfig(c config.EmailConfig) Config {
	return Config{
		Enabled:     c.Enabled,
		From:        c.From,
		Host:        c.SMTP.Host,
		Port:        c.SMTP.Port,
		Username:    c.SMTP.Username,
		Password:    c.SMTP.Password,
		ImplicitTLS: c.SMTP.UseTLS,
		Timeout:     time.Duration(c.SMTP.TimeoutSeconds) * time.Second,
	}
}
