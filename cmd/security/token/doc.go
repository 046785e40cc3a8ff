// Package token provides key material primitives for session tokens.
//
// It is the single source of truth for turning the operator-supplied signing
// secret into the keys used by the session token managers.
//
// Design goals:
// - The raw secret is only used directly where the wire format expects it (JWT HS256).
// - Symmetric encryption keys (PASETO v4.local) are derived with HKDF-SHA256 and a
//   purpose label, so one secret never doubles as two different keys.
// - A short fingerprint of the secret can be logged without exposing it.
//
// Environment:
//   - JWT_SECRET / EXCUSES_SESSION_SECRET: the signing secret (read by the session package).
package token
