package config

import (
	"errors"
	"os"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr           string
	DBDSN              string
	JWTIssuer          string
	JWTSecret          string
	JWTTTL             time.Duration
	InternalToken      string
	WebSocketOrigin    string
	QuoteCurrency      string
	TradeSweepEvery    time.Duration
	WithdrawFee        string
	DepositAddressHint string
}

func Load() (Config, error) {
	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		missing = append(missing, "JWT_TTL")
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, err
		}
		c.JWTTTL = d
	}
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		missing = append(missing, "WS_ORIGIN")
	}
	c.QuoteCurrency = strings.ToUpper(strings.TrimSpace(os.Getenv("QUOTE_CURRENCY")))
	if c.QuoteCurrency == "" {
		c.QuoteCurrency = "USDT"
	}
	sweep := os.Getenv("TRADE_SWEEP_INTERVAL")
	if sweep == "" {
		c.TradeSweepEvery = 5 * time.Second
	} else {
		d, err := time.ParseDuration(sweep)
		if err != nil {
			return c, err
		}
		c.TradeSweepEvery = d
	}
	c.WithdrawFee = os.Getenv("WITHDRAW_FEE")
	if c.WithdrawFee == "" {
		c.WithdrawFee = "0"
	}
	c.DepositAddressHint = os.Getenv("DEPOSIT_ADDRESS_HINT")
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}
