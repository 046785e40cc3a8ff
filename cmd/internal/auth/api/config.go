package authapi

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// GuardPolicy decides what the session guard does with unauthenticated requests.
type GuardPolicy string

const (
	// GuardReject answers with 401 (error page or JSON error).
	GuardReject GuardPolicy = "reject"
	// GuardRedirect answers with a 302 to the login page.
	GuardRedirect GuardPolicy = "redirect"
)

// ErrAdminMissing is returned by Validate when the admin pair is not configured.
var ErrAdminMissing = errors.New("admin username and password are required")

// Config controls login, cookie and guard behavior.
type Config struct {
	AdminUsername string
	AdminPassword string

	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	GuardPolicy GuardPolicy

	TrustProxy   bool
	MaxBodyBytes int64

	LoginIPMax    int
	LoginIPWindow time.Duration

	LockoutShortThreshold  int
	LockoutShortDuration   time.Duration
	LockoutLongThreshold   int
	LockoutLongDuration    time.Duration
	LockoutSevereThreshold int
	LockoutSevereDuration  time.Duration
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
// Only an unrecognized guard policy is an error; everything else falls back.
func LoadConfigFromEnv() (Config, error) {
	policy, err := ParseGuardPolicy(os.Getenv("EXCUSES_GUARD_POLICY"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		// The admin pair is compared byte for byte, so it is not trimmed.
		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		CookieName:     envString("EXCUSES_COOKIE_NAME", "token"),
		CookiePath:     envString("EXCUSES_COOKIE_PATH", "/"),
		CookieDomain:   strings.TrimSpace(os.Getenv("EXCUSES_COOKIE_DOMAIN")),
		CookieSecure:   envBool("EXCUSES_COOKIE_SECURE", false),
		CookieSameSite: parseSameSite(os.Getenv("EXCUSES_COOKIE_SAMESITE")),

		GuardPolicy: policy,

		TrustProxy:   envBool("EXCUSES_AUTH_TRUST_PROXY", false),
		MaxBodyBytes: envInt64("EXCUSES_MAX_BODY_BYTES", 64<<10),

		LoginIPMax:             envInt("EXCUSES_AUTH_LOGIN_IP_MAX", 20),
		LoginIPWindow:          envDuration("EXCUSES_AUTH_LOGIN_IP_WINDOW", 5*time.Minute),
		LockoutShortThreshold:  envInt("EXCUSES_AUTH_LOCKOUT_SHORT_THRESHOLD", 5),
		LockoutShortDuration:   envDuration("EXCUSES_AUTH_LOCKOUT_SHORT_DURATION", time.Minute),
		LockoutLongThreshold:   envInt("EXCUSES_AUTH_LOCKOUT_LONG_THRESHOLD", 10),
		LockoutLongDuration:    envDuration("EXCUSES_AUTH_LOCKOUT_LONG_DURATION", 15*time.Minute),
		LockoutSevereThreshold: envInt("EXCUSES_AUTH_LOCKOUT_SEVERE_THRESHOLD", 20),
		LockoutSevereDuration:  envDuration("EXCUSES_AUTH_LOCKOUT_SEVERE_DURATION", time.Hour),
	}

	// Browsers drop SameSite=None cookies that are not Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	return cfg, nil
}

// Validate reports missing required settings.
func (c Config) Validate() error {
	if c.AdminUsername == "" || c.AdminPassword == "" {
		return ErrAdminMissing
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return errors.New("cookie name is empty")
	}
	switch c.GuardPolicy {
	case GuardReject, GuardRedirect:
	default:
		return fmt.Errorf("unknown guard policy %q", c.GuardPolicy)
	}
	return nil
}

// ParseGuardPolicy parses "reject" or "redirect". Empty means reject.
func ParseGuardPolicy(raw string) (GuardPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "reject", "401":
		return GuardReject, nil
	case "redirect", "login":
		return GuardRedirect, nil
	default:
		return "", fmt.Errorf("EXCUSES_GUARD_POLICY=%q: want reject or redirect", raw)
	}
}

func parseSameSite(raw string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
