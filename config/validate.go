package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/Alijeyrad/simorq_billing/pkg/constants"
)

func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case constants.DriverPostgres:
		if c.Database.Host == "" || c.Database.DBName == "" {
			errs = append(errs, errors.New("database.host and database.dbname are required for postgres"))
		}
	case constants.DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q",
			constants.DriverPostgres, constants.DriverMemory, c.Database.Driver))
	}

	if _, err := time.LoadLocation(c.Billing.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("billing.timezone: %w", err))
	}
	if c.Billing.BillNumberPrefix == "" {
		errs = append(errs, errors.New("billing.bill_number_prefix is required"))
	}
	if c.Billing.PeakHours <= 0 || c.Billing.PeakHours > 24 {
		errs = append(errs, fmt.Errorf("billing.peak_hours must be in 1..24, got %d", c.Billing.PeakHours))
	}
	if c.Billing.ReportCacheTTLSeconds < 0 {
		errs = append(errs, errors.New("billing.report_cache_ttl_seconds must not be negative"))
	}
	if c.Billing.IdempotencyTTLMinutes <= 0 {
		errs = append(errs, errors.New("billing.idempotency_ttl_minutes must be positive"))
	}

	if c.SMS.Enabled && (c.SMS.SMSIR.APIKey == "" || c.SMS.SMSIR.RefundTemplateID == "") {
		errs = append(errs, errors.New("sms.smsir.api_key and sms.smsir.refund_template_id are required when sms is enabled"))
	}
	if c.Email.Enabled && (c.Email.SMTP.Host == "" || c.Email.From == "") {
		errs = append(errs, errors.New("email.smtp.host and email.from are required when email is enabled"))
	}

	return errors.Join(errs...)
}

// Location returns the clinic timezone. Validate has already checked it.
func (b BillingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (b BillingConfig) ReportCacheTTL() time.Duration {
	return time.Duration(b.ReportCacheTTLSeconds) * time.Second
}

func (b BillingConfig) IdempotencyTTL() time.Duration {
	return time.Duration(b.IdempotencyTTLMinutes) * time.Minute
}

// IsDevelopment reports whether the server runs in development mode.
func (s ServerConfig) IsDevelopment() bool {
	return s.Environment == "" || s.Environment == constants.EnvDevelopment
}
