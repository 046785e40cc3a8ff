package authapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"excuses/cmd/internal/auth/session"
)

type ctxKey struct{}

// WithClaims returns ctx carrying verified session claims.
func WithClaims(ctx context.Context, c session.Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// ClaimsFromContext returns the claims attached by RequireSession.
func ClaimsFromContext(ctx context.Context) (session.Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(session.Claims)
	return c, ok
}

// UsernameFromContext returns the authenticated username, if any.
func UsernameFromContext(ctx context.Context) (string, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok || c.Username == "" {
		return "", false
	}
	return c.Username, true
}

// RequireSession admits requests carrying a valid session cookie and applies
// the configured guard policy to everything else.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.verifyCookie(r)
		if err != nil {
			h.log.Info("auth.guard.denied",
				"path", r.URL.Path,
				"reason", denyReason(err),
				"policy", string(h.cfg.GuardPolicy),
			)
			h.deny(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

var errNoCookie = errors.New("no session cookie")

func (h *Handler) verifyCookie(r *http.Request) (session.Claims, error) {
	c, err := r.Cookie(h.cfg.CookieName)
	if err != nil {
		return session.Claims{}, errNoCookie
	}
	v := strings.TrimSpace(c.Value)
	if v == "" {
		return session.Claims{}, errNoCookie
	}
	return h.tokens.Verify(v, h.now())
}

func (h *Handler) deny(w http.ResponseWriter, r *http.Request) {
	if h.cfg.GuardPolicy == GuardRedirect {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	h.pages.Fail(w, r, http.StatusUnauthorized, "unauthorized", "login required")
}

func denyReason(err error) string {
	switch {
	case errors.Is(err, errNoCookie):
		return "missing"
	case errors.Is(err, session.ErrTokenExpired):
		return "expired"
	default:
		return "invalid"
	}
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, value string, exp time.Time) {
	c := &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	}
	// Tokens without an expiry get a browser-session cookie.
	if !exp.IsZero() {
		c.Expires = exp
	}
	http.SetCookie(w, c)
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}
