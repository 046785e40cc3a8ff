package session

import (
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"excuses/cmd/security/token"
)

const claimUsername = "username"

type pasetoV4LocalManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	key paseto.V4SymmetricKey
}

// NewPasetoV4LocalManager builds a TokenManager based on PASETO v4.local.
//
// The 32-byte symmetric key is derived from the configured secret with HKDF,
// so the same secret can also serve the JWT format without key reuse.
func NewPasetoV4LocalManager(cfg Config) (TokenManager, error) {
	raw, err := token.DeriveKey(cfg.Secret, token.PurposePasetoLocal, 32)
	if err != nil {
		return nil, ErrConfig
	}
	key, err := paseto.V4SymmetricKeyFromBytes(raw)
	if err != nil {
		return nil, ErrConfig
	}

	return &pasetoV4LocalManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.TTL,
		clockSkew: cfg.ClockSkew,
		key:       key,
	}, nil
}

func (m *pasetoV4LocalManager) Format() Format { return FormatPaseto }

func (m *pasetoV4LocalManager) Issue(username string, now time.Time) (string, time.Time, error) {
	if !validUsername(username) {
		return "", time.Time{}, ErrInvalidToken
	}

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetJti(newTokenID())
	tok.SetString(claimUsername, username)

	var exp time.Time
	if m.ttl > 0 {
		exp = now.Add(m.ttl)
		tok.SetExpiration(exp)
	}

	return tok.V4Encrypt(m.key, nil), exp, nil
}

func (m *pasetoV4LocalManager) Verify(tainted string, now time.Time) (Claims, error) {
	// Expiry is checked below so the same skew rules apply to both formats.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(m.issuer))

	parsed, err := p.ParseV4Local(m.key, tainted, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	username, err := parsed.GetString(claimUsername)
	if err != nil || !validUsername(username) {
		return Claims{}, ErrInvalidToken
	}

	// Missing optional claims come back as zero values.
	exp, _ := parsed.GetExpiration()
	nbf, _ := parsed.GetNotBefore()
	iat, _ := parsed.GetIssuedAt()
	jti, _ := parsed.GetJti()
	iss, _ := parsed.GetIssuer()

	if err := checkTimes(now, nbf, exp, m.clockSkew); err != nil {
		return Claims{}, err
	}

	return Claims{
		Username:  username,
		TokenID:   jti,
		Issuer:    iss,
		IssuedAt:  iat,
		ExpiresAt: exp,
	}, nil
}
