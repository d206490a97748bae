package sms

import (
	"context"
	"testing"

	"github.com/Alijeyrad/simorq_billing/config"
)

func TestNewFromConfig_Disabled(t *testing.T) {
	cfg := config.SMSConfig{
		Enabled: false,
	}

	client, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}

	if client.IsEnabled() {
		t.Error("Expected client to be disabled")
	}

	// disabled clients swallow sends
	if err := client.SendTemplate(context.Background(), "", "", nil); err != nil {
		t.Errorf("SendTemplate on disabled client: %v", err)
	}
}

func TestNewFromConfig_EnabledWithoutAPIKey(t *testing.T) {
	cfg := config.SMSConfig{
		Enabled: true,
		SMSIR: config.SMSIRConfig{
			APIKey:           "",
			SecretKey:        "",
			RefundTemplateID: "test-template",
		},
	}

	_, err := NewFromConfig(cfg)
	if err == nil {
		t.Error("Expected error when API key is missing")
	}
}

func TestNewFromConfig_EnabledWithAPIKey(t *testing.T) {
	cfg := config.SMSConfig{
		Enabled: true,
		SMSIR: config.SMSIRConfig{
			APIKey:           "test-api-key",
			SecretKey:        "test-secret-key",
			RefundTemplateID: "test-template",
		},
	}

	client, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}

	if !client.IsEnabled() {
		t.Error("Expected client to be enabled")
	}
}

func TestBuildTemplateRequest(t *testing.T) {
	t.Run("parameters are sorted by key", func(t *testing.T) {
		req, err := buildTemplateRequest("+989121234567", "100200", map[string]string{
			"amount":      "250.00",
			"bill_number": "BILL-2026-000001",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req.Mobile != "+989121234567" || req.TemplateID != "100200" {
			t.Errorf("request = %+v", req)
		}
		if len(req.Parameters) != 2 || req.Parameters[0].Key != "amount" || req.Parameters[1].Value != "BILL-2026-000001" {
			t.Errorf("parameters = %+v", req.Parameters)
		}
	})

	t.Run("requires phone and template", func(t *testing.T) {
		if _, err := buildTemplateRequest("", "1", nil); err == nil {
			t.Error("expected error without phone")
		}
		if _, err := buildTemplateRequest("+98912", "", nil); err == nil {
			t.Error("expected error without template")
		}
	})
}
