package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMap(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":     "db.example.com",
		"port":     5433,
		"user":     "app",
		"password": "secret",
		"database": "reports",
		"ssl_mode": "disable",
	})
	require.NoError(t, err)

	assert.Equal(t, "db.example.com", cfg.Host)
	assert.Equal(t, 5433, cfg.Port)
	assert.Equal(t, "app", cfg.User)
	assert.Equal(t, "reports", cfg.Database)
	assert.Equal(t, "disable", cfg.SSLMode)
}

func TestFromMapDefaults(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":     "localhost",
		"user":     "app",
		"database": "app",
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultPort(), cfg.Port)
	assert.Equal(t, DefaultSSLMode(), cfg.SSLMode)
}

func TestFromMapJSONNumbers(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":     "localhost",
		"port":     float64(5433), // JSON round trip turns numbers into float64
		"user":     "app",
		"database": "app",
	})
	require.NoError(t, err)
	assert.Equal(t, 5433, cfg.Port)
}

func TestFromMapMissingRequired(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
	}{
		{"missing host", map[string]any{"user": "app", "database": "app"}},
		{"missing user", map[string]any{"host": "x", "database": "app"}},
		{"missing database", map[string]any{"host": "x", "user": "app"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.config)
			assert.Error(t, err)
		})
	}
}

func TestConnStringEscapesCredentials(t *testing.T) {
	cfg := &Config{
		Host:     "db.example.com",
		Port:     5432,
		User:     "app",
		Password: "p@ss/word#1",
		Database: "reports",
		SSLMode:  "require",
	}

	got := cfg.ConnString()
	assert.Contains(t, got, "p%40ss%2Fword%231", "special characters must be URL-escaped")
	assert.Contains(t, got, "sslmode=require")
	assert.NotContains(t, got, "p@ss/word#1")
}
