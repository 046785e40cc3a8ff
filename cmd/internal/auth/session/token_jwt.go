package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type jwtClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type jwtManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	secret []byte
}

// NewJWTManager builds a TokenManager producing HS256 JWTs signed with the raw secret.
// The payload carries a top-level username claim.
func NewJWTManager(cfg Config) (TokenManager, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrConfig
	}
	return &jwtManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.TTL,
		clockSkew: cfg.ClockSkew,
		secret:    append([]byte(nil), cfg.Secret...),
	}, nil
}

func (m *jwtManager) Format() Format { return FormatJWT }

func (m *jwtManager) Issue(username string, now time.Time) (string, time.Time, error) {
	if !validUsername(username) {
		return "", time.Time{}, ErrInvalidToken
	}

	claims := jwtClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        newTokenID(),
		},
	}

	var exp time.Time
	if m.ttl > 0 {
		exp = now.Add(m.ttl)
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *jwtManager) Verify(tainted string, now time.Time) (Claims, error) {
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var c jwtClaims
	_, err := p.ParseWithClaims(tainted, &c, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}
	if !validUsername(c.Username) {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{
		Username: c.Username,
		TokenID:  c.ID,
		Issuer:   c.Issuer,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}
