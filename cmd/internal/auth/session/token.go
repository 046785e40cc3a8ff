package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Claims is the identity envelope carried by a session token.
type Claims struct {
	Username string
	TokenID  string
	Issuer   string
	IssuedAt time.Time

	// ExpiresAt is zero for tokens issued without an expiry.
	ExpiresAt time.Time
}

// TokenManager issues and verifies session tokens.
type TokenManager interface {
	// Issue returns a token for username. exp is zero when tokens do not expire.
	Issue(username string, now time.Time) (token string, exp time.Time, err error)
	// Verify checks the token and returns its claims, or ErrInvalidToken / ErrTokenExpired.
	Verify(token string, now time.Time) (Claims, error)
	// Format reports the wire format this manager produces.
	Format() Format
}

// NewTokenManager builds the manager selected by cfg.Format.
func NewTokenManager(cfg Config) (TokenManager, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("%w: missing secret", ErrConfig)
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("%w: negative ttl", ErrConfig)
	}

	switch cfg.Format {
	case FormatPaseto, "":
		return NewPasetoV4LocalManager(cfg)
	case FormatJWT:
		return NewJWTManager(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown token format %q", ErrConfig, cfg.Format)
	}
}

func newTokenID() string {
	return uuid.NewString()
}

// checkTimes applies expiry and not-before rules with clock skew tolerance.
func checkTimes(now, nbf, exp time.Time, skew time.Duration) error {
	if !nbf.IsZero() && now.Add(skew).Before(nbf) {
		return ErrInvalidToken
	}
	if !exp.IsZero() && now.After(exp.Add(skew)) {
		return ErrTokenExpired
	}
	return nil
}

func validUsername(s string) bool {
	return strings.TrimSpace(s) != ""
}
