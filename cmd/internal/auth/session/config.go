package session

import (
	"fmt"
	"os"
	"strings"
	"time"

	"excuses/cmd/security/token"
)

// Format selects the session token wire format.
type Format string

const (
	FormatPaseto Format = "paseto"
	FormatJWT    Format = "jwt"
)

// Config defines all runtime configuration for the session subsystem.
type Config struct {
	// Issuer is the value set in the "iss" claim and required on verification.
	Issuer string

	// TTL is the token lifetime. Zero issues tokens without an expiry.
	TTL time.Duration

	// ClockSkew is the tolerance applied to exp/nbf checks.
	ClockSkew time.Duration

	Format Format

	// Secret is the trimmed signing secret.
	Secret []byte
}

// DefaultConfig returns the defaults used when no environment overrides are present.
func DefaultConfig() Config {
	return Config{
		Issuer:    "excuses",
		TTL:       time.Hour,
		ClockSkew: 30 * time.Second,
		Format:    FormatPaseto,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - EXCUSES_SESSION_SECRET, or JWT_SECRET (at least token.MinSecretBytes bytes)
//
// Optional:
//   - EXCUSES_SESSION_ISSUER
//   - EXCUSES_SESSION_TTL ("0" disables expiry)
//   - EXCUSES_SESSION_CLOCK_SKEW
//   - EXCUSES_SESSION_FORMAT (paseto|jwt)
//
// Returns an error wrapping ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("EXCUSES_SESSION_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	if v := strings.TrimSpace(os.Getenv("EXCUSES_SESSION_TTL")); v != "" {
		d, err := parseTTL(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: EXCUSES_SESSION_TTL=%q", ErrConfig, v)
		}
		cfg.TTL = d
	}

	if v := strings.TrimSpace(os.Getenv("EXCUSES_SESSION_CLOCK_SKEW")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("%w: EXCUSES_SESSION_CLOCK_SKEW=%q", ErrConfig, v)
		}
		cfg.ClockSkew = d
	}

	if v := strings.TrimSpace(os.Getenv("EXCUSES_SESSION_FORMAT")); v != "" {
		f, err := ParseFormat(v)
		if err != nil {
			return Config{}, err
		}
		cfg.Format = f
	}

	raw := os.Getenv("EXCUSES_SESSION_SECRET")
	if strings.TrimSpace(raw) == "" {
		raw = os.Getenv("JWT_SECRET")
	}
	secret, err := token.CheckSecret(raw, token.MinSecretBytes)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	cfg.Secret = secret

	return cfg, nil
}

// ParseFormat maps a config string to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatPaseto, "paseto-v4", "v4.local":
		return FormatPaseto, nil
	case FormatJWT, "hs256":
		return FormatJWT, nil
	default:
		return "", fmt.Errorf("%w: unknown token format %q", ErrConfig, s)
	}
}

// parseTTL accepts Go durations and the literal "0" for no expiry.
func parseTTL(s string) (time.Duration, error) {
	if s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, ErrConfig
	}
	return d, nil
}
