package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Alijeyrad/simorq_billing/config"
)

func TestDSN(t *testing.T) {
	c := Config{Host: "db", Port: 5432, User: "billing", Password: "s3cret", DBName: "simorq_billing", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=billing password=s3cret dbname=simorq_billing sslmode=disable", c.DSN())

	c.Password = `it's a pass\word`
	c.Port = 0
	c.SSLMode = ""
	assert.Equal(t, `host=db user=billing password='it\'s a pass\\word' dbname=simorq_billing`, c.DSN())
}

func TestFromCentralConfig(t *testing.T) {
	var c config.DatabaseConfig
	c.Host = "db"
	c.Pool.ConnMaxLifetimeMin = 30
	c.Logging.Enabled = true

	got := FromCentralConfig(c)
	assert.Equal(t, 30*time.Minute, got.ConnMaxLifetime)
	assert.True(t, got.LogQueries)
}
