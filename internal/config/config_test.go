package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("DB_DSN", "postgres://localhost/custody")
	t.Setenv("JWT_ISSUER", "bx-custody")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_TTL", "24h")
	t.Setenv("INTERNAL_API_TOKEN", "internal")
	t.Setenv("WS_ORIGIN", "*")
}

func TestLoad(t *testing.T) {
	setRequired(t)
	t.Setenv("QUOTE_CURRENCY", "usdt")
	t.Setenv("TRADE_SWEEP_INTERVAL", "10s")
	t.Setenv("WITHDRAW_FEE", "0.5")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, 24*time.Hour, c.JWTTTL)
	assert.Equal(t, "USDT", c.QuoteCurrency)
	assert.Equal(t, 10*time.Second, c.TradeSweepEvery)
	assert.Equal(t, "0.5", c.WithdrawFee)
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("QUOTE_CURRENCY", "")
	t.Setenv("TRADE_SWEEP_INTERVAL", "")
	t.Setenv("WITHDRAW_FEE", "")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "USDT", c.QuoteCurrency)
	assert.Equal(t, 5*time.Second, c.TradeSweepEvery)
	assert.Equal(t, "0", c.WithdrawFee)
}

func TestLoadReportsAllMissing(t *testing.T) {
	setRequired(t)
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "HTTP_ADDR"))
	assert.True(t, strings.Contains(err.Error(), "JWT_SECRET"))
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("TRADE_SWEEP_INTERVAL", "often")
	_, err := Load()
	assert.Error(t, err)
}
