package app

import (
	"errors"

	authapi "excuses/cmd/internal/auth/api"
	"excuses/cmd/internal/auth/session"
	"excuses/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// The service refuses to start without an admin identity or with a signing
// secret shorter than token.MinSecretBytes.
func ValidateSecurityConfig(auth authapi.Config, sess session.Config) error {
	if auth.AdminUsername == "" || auth.AdminPassword == "" {
		return errors.New("security policy: ADMIN_USERNAME and ADMIN_PASSWORD must both be set")
	}

	if _, err := token.CheckSecret(string(sess.Secret), token.MinSecretBytes); err != nil {
		switch {
		case errors.Is(err, token.ErrSecretMissing):
			return errors.New("security policy: JWT_SECRET (or EXCUSES_SESSION_SECRET) is missing")
		case errors.Is(err, token.ErrSecretTooShort):
			return errors.New("security policy: JWT_SECRET (or EXCUSES_SESSION_SECRET) is too short (min 16 bytes)")
		default:
			return err
		}
	}

	if auth.AdminPassword == string(sess.Secret) {
		return errors.New("security policy: ADMIN_PASSWORD must differ from the session secret")
	}
	return nil
}
