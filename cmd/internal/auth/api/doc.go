// Package authapi implements the admin login flow and the cookie session guard.
//
// There is exactly one admin identity, configured through the environment.
// A successful login stores a signed session token in an http-only cookie;
// RequireSession verifies that cookie statelessly on every guarded route.
// Logging out only clears the cookie. There is no revocation list, so a copied
// token remains usable until its own expiry.
package authapi
