package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	Port     int           `env:"TEST_CART_PORT" envDefault:"8003"`
	Brokers  []string      `env:"TEST_CART_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	Timeout  time.Duration `env:"TEST_CART_TIMEOUT" envDefault:"5s"`
	Required string        `env:"TEST_CART_SECRET"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg sampleConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8003, cfg.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Empty(t, cfg.Required)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CART_PORT", "9090")
	t.Setenv("TEST_CART_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TEST_CART_TIMEOUT", "250ms")

	var cfg sampleConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
}

type requiredConfig struct {
	Secret string `env:"TEST_CART_JWT_SECRET,required"`
}

func TestLoad_RequiredFieldMissing(t *testing.T) {
	var cfg requiredConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_InvalidType(t *testing.T) {
	t.Setenv("TEST_CART_PORT", "eight-thousand")

	var cfg sampleConfig
	err := Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
