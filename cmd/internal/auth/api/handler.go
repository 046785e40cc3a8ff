package authapi

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"excuses/cmd/internal/auth/session"
	"excuses/cmd/internal/web"

	"github.com/go-chi/chi/v5"
)

// Login results reported to a LoginObserver.
const (
	LoginSuccess     = "success"
	LoginFailure     = "failure"
	LoginRateLimited = "rate_limited"
	LoginError       = "error"
)

// LoginObserver receives one call per login attempt.
type LoginObserver interface {
	ObserveLogin(result string)
}

type noopObserver struct{}

func (noopObserver) ObserveLogin(string) {}

// Handler wires the login flow and the session guard.
type Handler struct {
	log    *slog.Logger
	cfg    Config
	tokens session.TokenManager
	pages  *web.Pages

	throttle *loginThrottle
	observer LoginObserver
	now      func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithLoginObserver reports login outcomes, typically to metrics.
func WithLoginObserver(o LoginObserver) HandlerOption {
	return func(h *Handler) {
		if h == nil || o == nil {
			return
		}
		h.observer = o
	}
}

// WithClock overrides time.Now for token issue and verification.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, tokens session.TokenManager, pages *web.Pages, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, errors.New("auth: nil token manager")
	}
	if pages == nil {
		return nil, errors.New("auth: nil pages")
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		tokens:   tokens,
		pages:    pages,
		throttle: newLoginThrottle(cfg),
		observer: noopObserver{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires the login, logout and admin page routes.
func (h *Handler) Register(r chi.Router) {
	if h == nil || r == nil {
		return
	}
	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Get("/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireSession)
		r.Get("/admin", h.handleAdmin)
		r.Get("/admin.html", h.handleAdminLegacy)
	})
}

// ---- handlers ----

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.pages.Serve(w, r, http.StatusOK, web.PageLogin)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	ip := clientIP(r, h.cfg.TrustProxy)

	if blocked, retryAfter := h.throttle.check(ip, now); blocked {
		h.observer.ObserveLogin(LoginRateLimited)
		h.log.Warn("auth.login.rate_limited", "ip", ipString(ip), "retry_after_s", int64(retryAfter.Seconds()))
		retryAfterHeader(w, retryAfter)
		h.pages.Fail(w, r, http.StatusTooManyRequests, "rate_limited", "too many attempts")
		return
	}

	// An unreadable body is just another wrong pair.
	req, err := h.readLogin(w, r)
	if err != nil {
		h.loginFailed(w, r, ip, now, "malformed_body")
		return
	}

	if !h.credentialsMatch(req.Username, req.Password) {
		h.loginFailed(w, r, ip, now, "bad_credentials")
		return
	}

	token, exp, err := h.tokens.Issue(h.cfg.AdminUsername, now)
	if err != nil {
		h.observer.ObserveLogin(LoginError)
		h.log.Error("auth.login.issue_token.fail", "err", err)
		h.pages.Fail(w, r, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.throttle.reset(ip)
	h.setSessionCookie(w, token, exp)
	h.observer.ObserveLogin(LoginSuccess)
	h.log.Info("auth.login.success", "ip", ipString(ip), "format", string(h.tokens.Format()))
	http.Redirect(w, r, "/admin", http.StatusFound)
}

func (h *Handler) loginFailed(w http.ResponseWriter, r *http.Request, ip net.IP, now time.Time, reason string) {
	h.throttle.recordFailure(ip, now)
	h.observer.ObserveLogin(LoginFailure)
	h.log.Warn("auth.login.failed", "ip", ipString(ip), "reason", reason)
	h.pages.Fail(w, r, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	// The token itself stays valid until it expires; only the cookie goes away.
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handler) handleAdmin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	h.pages.Serve(w, r, http.StatusOK, web.PageAdmin)
}

func (h *Handler) handleAdminLegacy(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/admin", http.StatusFound)
}

// ---- helpers ----

// readLogin accepts a JSON body or a urlencoded/multipart form.
func (h *Handler) readLogin(w http.ResponseWriter, r *http.Request) (loginRequest, error) {
	var req loginRequest
	if web.IsJSONContent(r) {
		if err := web.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			return loginRequest{}, err
		}
		return req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return loginRequest{}, err
	}
	return loginRequest{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}, nil
}

// credentialsMatch compares both values in constant time, always checking both.
func (h *Handler) credentialsMatch(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.cfg.AdminUsername))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(h.cfg.AdminPassword))
	return userOK&passOK == 1
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
