package sms

import (
	"context"
	"fmt"
	"slices"

	"github.com/arsmn/go-smsir/smsir"
	"github.com/samber/lo"

	"github.com/Alijeyrad/simorq_billing/config"
)

// Client provides SMS sending functionality via sms.ir.
type Client struct {
	client  *smsir.Client
	enabled bool
}

// NewFromConfig creates a new SMS client from the application configuration.
// If SMS is disabled, returns a client that no-ops on all operations.
func NewFromConfig(cfg config.SMSConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{enabled: false}, nil
	}

	if cfg.SMSIR.APIKey == "" {
		return nil, fmt.Errorf("sms.ir API key required when SMS enabled")
	}

	client := smsir.NewClient().WithAuthentication(cfg.SMSIR.APIKey, cfg.SMSIR.SecretKey)

	return &Client{
		client:  client,
		enabled: true,
	}, nil
}

// SendTemplate sends an sms.ir "ultra fast" template message. Every key in
// params must exist as a parameter of the template.
// If SMS is disabled, this is a no-op and returns nil.
func (c *Client) SendTemplate(ctx context.Context, phoneNumber, templateID string, params map[string]string) error {
	if !c.enabled {
		// No-op when disabled (useful for development)
		return nil
	}

	req, err := buildTemplateRequest(phoneNumber, templateID, params)
	if err != nil {
		return err
	}

	if _, err := c.client.Verification.UltraFastSend(ctx, req); err != nil {
		return fmt.Errorf("sms.ir send failed: %w", err)
	}

	return nil
}

func buildTemplateRequest(phoneNumber, templateID string, params map[string]string) (*smsir.UltraFastSendRequest, error) {
	if phoneNumber == "" {
		return nil, fmt.Errorf("phone number is required")
	}
	if templateID == "" {
		return nil, fmt.Errorf("template ID is required")
	}

	keys := lo.Keys(params)
	slices.Sort(keys)

	return &smsir.UltraFastSendRequest{
		Mobile:     phoneNumber,
		TemplateID: templateID,
		Parameters: lo.Map(keys, func(k string, _ int) smsir.UltraFastParameter {
			return smsir.UltraFastParameter{Key: k, Value: params[k]}
		}),
	}, nil
}

// IsEnabled returns whether SMS sending is enabled.
func (c *Client) IsEnabled() bool {
	return c.enabled
}
