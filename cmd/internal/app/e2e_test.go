package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	authapi "excuses/cmd/internal/auth/api"
	"excuses/cmd/internal/auth/session"
	"excuses/cmd/internal/excuse"
	"excuses/cmd/internal/realtime"

	"github.com/coder/websocket"
)

const (
	e2eAdmin    = "admin"
	e2ePassword = "correct horse battery"
	e2eSecret   = "0123456789abcdef0123456789abcdef"
)

func e2eConfigs(dataFile string, policy authapi.GuardPolicy) (Config, authapi.Config, session.Config) {
	cfg := Config{
		HTTPAddr:           "127.0.0.1:0",
		DataFile:           dataFile,
		CORSAllowedOrigins: []string{"*"},
		MetricsEnabled:     true,
	}
	authCfg := authapi.Config{
		AdminUsername:  e2eAdmin,
		AdminPassword:  e2ePassword,
		CookieName:     "token",
		CookiePath:     "/",
		CookieSameSite: http.SameSiteLaxMode,
		GuardPolicy:    policy,
		MaxBodyBytes:   64 << 10,
		LoginIPMax:     20,
		LoginIPWindow:  time.Minute,
	}
	sessCfg := session.Config{
		Issuer:    "excuses",
		TTL:       time.Hour,
		ClockSkew: time.Second,
		Format:    session.FormatPaseto,
		Secret:    []byte(e2eSecret),
	}
	return cfg, authCfg, sessCfg
}

func newE2EApp(t *testing.T, dataFile string, policy authapi.GuardPolicy) *App {
	t.Helper()
	cfg, authCfg, sessCfg := e2eConfigs(dataFile, policy)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(cfg, log, authCfg, sessCfg, realtime.DefaultGatewayConfig())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.hub.Close)
	return a
}

func newE2EServer(t *testing.T, policy authapi.GuardPolicy) (*httptest.Server, *App, string) {
	t.Helper()
	dataFile := filepath.Join(t.TempDir(), "excuses.json")
	a := newE2EApp(t, dataFile, policy)
	ts := httptest.NewServer(a.Handler())
	t.Cleanup(ts.Close)
	return ts, a, dataFile
}

// noRedirectClient keeps cookies but reports redirects instead of following them.
func noRedirectClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Timeout: 5 * time.Second,
	}
}

func do(t *testing.T, c *http.Client, method, u, contentType, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, u, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, u, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, b
}

func login(t *testing.T, c *http.Client, base string) {
	t.Helper()
	form := url.Values{"username": {e2eAdmin}, "password": {e2ePassword}}
	resp, _ := do(t, c, http.MethodPost, base+"/login", "application/x-www-form-urlencoded", form.Encode())
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/admin" {
		t.Fatalf("login status=%d location=%q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func listExcuses(t *testing.T, c *http.Client, base string) []excuse.Excuse {
	t.Helper()
	resp, body := do(t, c, http.MethodGet, base+"/api/excuses", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status=%d body=%s", resp.StatusCode, body)
	}
	var out []excuse.Excuse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode list %s: %v", body, err)
	}
	return out
}

func TestE2E_FirstStartSeedsDefaults(t *testing.T) {
	t.Parallel()

	ts, _, dataFile := newE2EServer(t, authapi.GuardReject)
	c := noRedirectClient(t)

	got := listExcuses(t, c, ts.URL)
	want := excuse.Defaults()
	if len(got) != len(want) {
		t.Fatalf("len=%d want=%d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d=%+v want=%+v", i, got[i], want[i])
		}
	}

	b, err := os.ReadFile(dataFile)
	if err != nil {
		t.Fatalf("seed file not written: %v", err)
	}
	var onDisk []excuse.Excuse
	if err := json.Unmarshal(b, &onDisk); err != nil || len(onDisk) != len(want) {
		t.Fatalf("seed file=%s err=%v", b, err)
	}
}

func TestE2E_LoginGuardAndMutations(t *testing.T) {
	t.Parallel()

	ts, _, dataFile := newE2EServer(t, authapi.GuardReject)
	c := noRedirectClient(t)

	// Unauthenticated writes are refused and change nothing.
	resp, body := do(t, c, http.MethodPost, ts.URL+"/api/excuses", "application/json", `{"excuse":"sneaky"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anon POST status=%d body=%s", resp.StatusCode, body)
	}
	resp, _ = do(t, c, http.MethodDelete, ts.URL+"/api/excuses/1", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anon DELETE status=%d", resp.StatusCode)
	}
	resp, _ = do(t, c, http.MethodGet, ts.URL+"/admin", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anon /admin status=%d", resp.StatusCode)
	}
	if n := len(listExcuses(t, c, ts.URL)); n != 5 {
		t.Fatalf("len after anon writes=%d want=5", n)
	}

	login(t, c, ts.URL)

	resp, body = do(t, c, http.MethodGet, ts.URL+"/admin", "", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Manage excuses") {
		t.Fatalf("/admin status=%d", resp.StatusCode)
	}
	resp, _ = do(t, c, http.MethodGet, ts.URL+"/admin.html", "", "")
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/admin" {
		t.Fatalf("/admin.html status=%d location=%q", resp.StatusCode, resp.Header.Get("Location"))
	}

	// Empty text is a validation failure.
	resp, _ = do(t, c, http.MethodPost, ts.URL+"/api/excuses", "application/json", `{"excuse":"   "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty add status=%d", resp.StatusCode)
	}
	if n := len(listExcuses(t, c, ts.URL)); n != 5 {
		t.Fatalf("len after empty add=%d want=5", n)
	}

	resp, body = do(t, c, http.MethodPost, ts.URL+"/api/excuses", "application/json", `{"excuse":"  The dog filed my taxes.  "}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status=%d body=%s", resp.StatusCode, body)
	}
	var created excuse.Excuse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.ID != 6 || created.Text != "The dog filed my taxes." {
		t.Fatalf("created=%+v", created)
	}

	resp, body = do(t, c, http.MethodDelete, ts.URL+"/api/excuses/3", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status=%d body=%s", resp.StatusCode, body)
	}
	var deleted struct {
		Message string          `json:"message"`
		Deleted []excuse.Excuse `json:"deleted"`
	}
	if err := json.Unmarshal(body, &deleted); err != nil {
		t.Fatalf("decode delete: %v", err)
	}
	if deleted.Message != "Deleted successfully" || len(deleted.Deleted) != 1 || deleted.Deleted[0].ID != 3 {
		t.Fatalf("delete body=%s", body)
	}

	resp, _ = do(t, c, http.MethodDelete, ts.URL+"/api/excuses/3", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status=%d", resp.StatusCode)
	}
	resp, _ = do(t, c, http.MethodDelete, ts.URL+"/api/excuses/abc", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("non-numeric delete status=%d", resp.StatusCode)
	}

	after := listExcuses(t, c, ts.URL)
	if len(after) != 5 {
		t.Fatalf("len=%d want=5", len(after))
	}
	for _, e := range after {
		if e.ID == 3 {
			t.Fatalf("id 3 still present: %+v", after)
		}
	}

	// A restart from the same file sees exactly what was persisted.
	reloaded := newE2EApp(t, dataFile, authapi.GuardReject).Store().List()
	if len(reloaded) != len(after) {
		t.Fatalf("reloaded len=%d want=%d", len(reloaded), len(after))
	}
	for i := range after {
		if reloaded[i] != after[i] {
			t.Fatalf("reloaded[%d]=%+v want=%+v", i, reloaded[i], after[i])
		}
	}

	// Logout clears the cookie; the guard then refuses again.
	resp, _ = do(t, c, http.MethodGet, ts.URL+"/logout", "", "")
	if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/login" {
		t.Fatalf("logout status=%d location=%q", resp.StatusCode, resp.Header.Get("Location"))
	}
	resp, _ = do(t, c, http.MethodPost, ts.URL+"/api/excuses", "application/json", `{"excuse":"after logout"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("POST after logout status=%d", resp.StatusCode)
	}
}

func TestE2E_BadCredentials(t *testing.T) {
	t.Parallel()

	ts, _, _ := newE2EServer(t, authapi.GuardReject)
	c := noRedirectClient(t)

	form := url.Values{"username": {e2eAdmin}, "password": {"wrong"}}
	resp, _ := do(t, c, http.MethodPost, ts.URL+"/login", "application/x-www-form-urlencoded", form.Encode())
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d want=401", resp.StatusCode)
	}
	u, _ := url.Parse(ts.URL)
	if cookies := c.Jar.Cookies(u); len(cookies) != 0 {
		t.Fatalf("cookie set on failed login: %v", cookies)
	}
}

func TestE2E_RedirectPolicy(t *testing.T) {
	t.Parallel()

	ts, _, _ := newE2EServer(t, authapi.GuardRedirect)
	c := noRedirectClient(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/excuses"},
		{http.MethodDelete, "/api/excuses/1"},
		{http.MethodGet, "/admin"},
	} {
		resp, _ := do(t, c, tc.method, ts.URL+tc.path, "application/json", `{"excuse":"x"}`)
		if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/login" {
			t.Fatalf("%s %s status=%d location=%q", tc.method, tc.path, resp.StatusCode, resp.Header.Get("Location"))
		}
	}
}

func TestE2E_AdminPageAliasesStayGuarded(t *testing.T) {
	t.Parallel()

	const adminMarker = "Manage excuses"
	aliases := []string{"/admin.html/", "//admin.html", "/./admin.html", "/admin/", "//admin"}

	for _, policy := range []authapi.GuardPolicy{authapi.GuardReject, authapi.GuardRedirect} {
		t.Run(string(policy), func(t *testing.T) {
			t.Parallel()

			ts, _, _ := newE2EServer(t, policy)
			c := noRedirectClient(t)

			for _, p := range aliases {
				resp, body := do(t, c, http.MethodGet, ts.URL+p, "", "")
				if strings.Contains(string(body), adminMarker) {
					t.Fatalf("GET %s served the admin page anonymously (status=%d)", p, resp.StatusCode)
				}
				switch policy {
				case authapi.GuardRedirect:
					if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/login" {
						t.Fatalf("GET %s status=%d location=%q", p, resp.StatusCode, resp.Header.Get("Location"))
					}
				default:
					if resp.StatusCode != http.StatusUnauthorized {
						t.Fatalf("GET %s status=%d want=401", p, resp.StatusCode)
					}
				}
			}

			login(t, c, ts.URL)
			resp, body := do(t, c, http.MethodGet, ts.URL+"/admin/", "", "")
			if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), adminMarker) {
				t.Fatalf("GET /admin/ with session status=%d", resp.StatusCode)
			}
		})
	}
}

func TestE2E_RandomAndEmptyStore(t *testing.T) {
	t.Parallel()

	ts, _, _ := newE2EServer(t, authapi.GuardReject)
	c := noRedirectClient(t)

	ids := map[int]bool{}
	for _, e := range listExcuses(t, c, ts.URL) {
		ids[e.ID] = true
	}
	for i := 0; i < 20; i++ {
		resp, body := do(t, c, http.MethodGet, ts.URL+"/api/excuses/random", "", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("random status=%d", resp.StatusCode)
		}
		var e excuse.Excuse
		if err := json.Unmarshal(body, &e); err != nil || !ids[e.ID] {
			t.Fatalf("random returned %s (err=%v)", body, err)
		}
	}

	login(t, c, ts.URL)
	for id := range ids {
		resp, _ := do(t, c, http.MethodDelete, ts.URL+"/api/excuses/"+strconv.Itoa(id), "", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delete %d status=%d", id, resp.StatusCode)
		}
	}

	resp, body := do(t, c, http.MethodGet, ts.URL+"/api/excuses/random", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("random on empty store status=%d body=%s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), `"code"`) {
		t.Fatalf("expected json error body, got %s", body)
	}
}

func TestE2E_PagesAndOperationalRoutes(t *testing.T) {
	t.Parallel()

	ts, _, _ := newE2EServer(t, authapi.GuardReject)
	c := noRedirectClient(t)

	cases := []struct {
		method   string
		path     string
		status   int
		contains string
	}{
		{http.MethodGet, "/", http.StatusOK, "<html"},
		{http.MethodGet, "/login", http.StatusOK, "<form"},
		{http.MethodGet, "/style.css", http.StatusOK, ""},
		{http.MethodGet, "/400", http.StatusBadRequest, "400"},
		{http.MethodGet, "/401", http.StatusUnauthorized, "401"},
		{http.MethodGet, "/403", http.StatusForbidden, "403"},
		{http.MethodGet, "/404", http.StatusNotFound, "404"},
		{http.MethodGet, "/500", http.StatusInternalServerError, "500"},
		{http.MethodGet, "/no/such/page", http.StatusNotFound, "404"},
		{http.MethodGet, "/api/nothing", http.StatusNotFound, `"not_found"`},
		{http.MethodPut, "/api/excuses", http.StatusNotFound, `"not_found"`},
		{http.MethodGet, "/healthz", http.StatusOK, "ok"},
		{http.MethodHead, "/healthz", http.StatusOK, ""},
		{http.MethodGet, "/readyz", http.StatusOK, "ready"},
		{http.MethodGet, "/metrics", http.StatusOK, "excuses_records 5"},
	}

	for _, tc := range cases {
		resp, body := do(t, c, tc.method, ts.URL+tc.path, "", "")
		if resp.StatusCode != tc.status {
			t.Fatalf("%s %s status=%d want=%d", tc.method, tc.path, resp.StatusCode, tc.status)
		}
		if tc.contains != "" && !strings.Contains(string(body), tc.contains) {
			t.Fatalf("%s %s body missing %q", tc.method, tc.path, tc.contains)
		}
		if resp.Header.Get(HeaderRequestID) == "" {
			t.Fatalf("%s %s missing request id", tc.method, tc.path)
		}
		if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("%s %s missing security headers", tc.method, tc.path)
		}
	}
}

func TestE2E_FeedPublishesMutations(t *testing.T) {
	t.Parallel()

	ts, a, _ := newE2EServer(t, authapi.GuardReject)
	c := noRedirectClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, wsBaseURL(ts.URL)+FeedPath, &websocket.DialOptions{
		Subprotocols: []string{realtime.FeedSubprotocol},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	defer conn.CloseNow()

	if env := readFeed(t, ctx, conn); env.Type != realtime.TypeHello {
		t.Fatalf("first frame type=%q want=%q", env.Type, realtime.TypeHello)
	}
	if n := a.hub.Len(); n != 1 {
		t.Fatalf("hub len=%d want=1", n)
	}

	login(t, c, ts.URL)
	if r, body := do(t, c, http.MethodPost, ts.URL+"/api/excuses", "application/json", `{"excuse":"Mercury is in retrograde."}`); r.StatusCode != http.StatusCreated {
		t.Fatalf("add status=%d body=%s", r.StatusCode, body)
	}

	env := readFeed(t, ctx, conn)
	if env.Type != realtime.TypeExcuseCreated {
		t.Fatalf("type=%q want=%q", env.Type, realtime.TypeExcuseCreated)
	}
	var got excuse.Excuse
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.ID != 6 || got.Text != "Mercury is in retrograde." {
		t.Fatalf("payload=%+v", got)
	}

	if r, _ := do(t, c, http.MethodDelete, ts.URL+"/api/excuses/6", "", ""); r.StatusCode != http.StatusOK {
		t.Fatalf("delete status=%d", r.StatusCode)
	}
	if env := readFeed(t, ctx, conn); env.Type != realtime.TypeExcuseDeleted {
		t.Fatalf("type=%q want=%q", env.Type, realtime.TypeExcuseDeleted)
	}
}

func readFeed(t *testing.T, ctx context.Context, conn *websocket.Conn) realtime.Envelope {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read feed: %v", err)
	}
	var env realtime.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope %s: %v", data, err)
	}
	return env
}

func TestNewApp_SecurityPolicy(t *testing.T) {
	t.Parallel()

	dataFile := filepath.Join(t.TempDir(), "excuses.json")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cases := []struct {
		name   string
		mutate func(*authapi.Config, *session.Config)
	}{
		{name: "missing username", mutate: func(a *authapi.Config, _ *session.Config) { a.AdminUsername = "" }},
		{name: "missing password", mutate: func(a *authapi.Config, _ *session.Config) { a.AdminPassword = "" }},
		{name: "missing secret", mutate: func(_ *authapi.Config, s *session.Config) { s.Secret = nil }},
		{name: "short secret", mutate: func(_ *authapi.Config, s *session.Config) { s.Secret = []byte("short") }},
		{name: "password equals secret", mutate: func(a *authapi.Config, s *session.Config) { a.AdminPassword = string(s.Secret) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, authCfg, sessCfg := e2eConfigs(dataFile, authapi.GuardReject)
			tc.mutate(&authCfg, &sessCfg)
			if _, err := newApp(cfg, log, authCfg, sessCfg, realtime.DefaultGatewayConfig()); err == nil {
				t.Fatalf("expected security policy error")
			}
			if _, err := os.Stat(dataFile); !errors.Is(err, os.ErrNotExist) {
				t.Fatalf("data file must not be created when startup is refused: %v", err)
			}
		})
	}
}

func TestNew_ReadsEnvironment(t *testing.T) {
	t.Setenv("ADMIN_USERNAME", e2eAdmin)
	t.Setenv("ADMIN_PASSWORD", e2ePassword)
	t.Setenv("JWT_SECRET", e2eSecret)
	t.Setenv("EXCUSES_SESSION_FORMAT", "jwt")
	t.Setenv("EXCUSES_GUARD_POLICY", "redirect")

	cfg := Config{DataFile: filepath.Join(t.TempDir(), "excuses.json")}
	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.hub.Close()

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/excuses", strings.NewReader(`{"excuse":"x"}`)))
	if rr.Code != http.StatusFound {
		t.Fatalf("status=%d want=302", rr.Code)
	}

	t.Setenv("EXCUSES_GUARD_POLICY", "sometimes")
	if _, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatalf("expected error for unknown guard policy")
	}
}

func TestApp_ServeAndShutdown(t *testing.T) {
	t.Parallel()

	a := newE2EApp(t, filepath.Join(t.TempDir(), "excuses.json"), authapi.GuardReject)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	base := runtimeBaseURL(ln.Addr().String())
	resp, body := do(t, noRedirectClient(t), http.MethodGet, base+"/healthz", "", "")
	if resp.StatusCode != http.StatusOK || string(body) != "ok\n" {
		t.Fatalf("healthz status=%d body=%q", resp.StatusCode, body)
	}

	// An open feed connection must not hold up shutdown.
	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	conn, wsResp, err := websocket.Dial(dialCtx, wsBaseURL(base)+FeedPath, &websocket.DialOptions{
		Subprotocols: []string{realtime.FeedSubprotocol},
	})
	if wsResp != nil && wsResp.Body != nil {
		_ = wsResp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	defer conn.CloseNow()
	readFeed(t, dialCtx, conn)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}

	if _, _, err := conn.Read(dialCtx); websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Fatalf("feed close err=%v want going away", err)
	}
}

