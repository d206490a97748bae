package constants

const (
	AppName    = "simorq_billing"
	EnvPrefix  = "SIMORQ"
	ConfigName = "config"
	// ConfigFormat is the viper config type.
	ConfigFormat = "yaml"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Header names shared by middleware and handlers.
const (
	HeaderClinicID         = "X-Clinic-ID"
	HeaderRequestID        = "X-Request-ID"
	HeaderIdempotencyKey   = "Idempotency-Key"
	HeaderIdempotentReplay = "Idempotent-Replayed"
)
