// Package session implements the stateless admin session token.
//
// A session token binds the admin username (and, unless disabled, an expiry)
// and is carried by the client in an http-only cookie. There is no server-side
// session table: verification is purely cryptographic, so a token stays valid
// until its own expiry even after the cookie is cleared on logout.
//
// Two wire formats are supported behind the TokenManager interface:
//   - PASETO v4.local (default): authenticated encryption with a key derived from the secret.
//   - JWT HS256: signed with the raw secret, a payload of {username} plus the registered claims.
//
// Transport (cookies, guard middleware) lives in the auth api package.
package session
