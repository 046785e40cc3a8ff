package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	wsDefaultSendQueueSize = 64
	wsMinSendQueueSize     = 8

	wsDefaultWriteTimeout = 5 * time.Second
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3
)

// GatewayConfig controls the feed endpoint.
type GatewayConfig struct {
	// OriginRequired rejects upgrades without an Origin header.
	OriginRequired bool
	// AllowedOrigins lists cross-origin pages allowed to subscribe. Same-host
	// origins are always accepted; "*" accepts any origin.
	AllowedOrigins []string

	WriteTimeout  time.Duration
	SendQueueSize int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

// DefaultGatewayConfig returns the defaults used without environment overrides.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		WriteTimeout:     wsDefaultWriteTimeout,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
	}
}

// LoadGatewayConfigFromEnv reads EXCUSES_FEED_* variables over the defaults.
func LoadGatewayConfigFromEnv() GatewayConfig {
	def := DefaultGatewayConfig()
	return GatewayConfig{
		OriginRequired:   envBoolWS("EXCUSES_FEED_ORIGIN_REQUIRED", false),
		AllowedOrigins:   envCSVWS("EXCUSES_FEED_ALLOWED_ORIGINS", ""),
		WriteTimeout:     envDurationWS("EXCUSES_FEED_WRITE_TIMEOUT", def.WriteTimeout),
		SendQueueSize:    envIntWS("EXCUSES_FEED_SEND_QUEUE", def.SendQueueSize),
		HeartbeatEvery:   envDurationWS("EXCUSES_FEED_HEARTBEAT_INTERVAL", def.HeartbeatEvery),
		HeartbeatTimeout: envDurationWS("EXCUSES_FEED_HEARTBEAT_TIMEOUT", def.HeartbeatTimeout),
		RateEvents:       envIntWS("EXCUSES_FEED_RATE_EVENTS", def.RateEvents),
		RateWindow:       envDurationWS("EXCUSES_FEED_RATE_WINDOW", def.RateWindow),
	}
}

// WSGateway is the websocket endpoint of the live excuse feed.
//
// The feed is push-only: subscribers receive excuse.created and excuse.deleted
// envelopes. Anything a client sends is answered with an error envelope and
// counted against a per-connection rate limit.
type WSGateway struct {
	log *slog.Logger
	hub *Hub
	cfg GatewayConfig

	// Derived for websocket.Accept, which only authorizes cross-origin
	// requests whose host matches one of these patterns.
	originPatterns []string
}

// NewWSGateway constructs a gateway. A nil hub gets a private one.
func NewWSGateway(log *slog.Logger, hub *Hub, cfg GatewayConfig) *WSGateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log)
	}

	def := DefaultGatewayConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendQueueSize < wsMinSendQueueSize {
		cfg.SendQueueSize = wsMinSendQueueSize
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = def.HeartbeatEvery
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.RateEvents <= 0 {
		cfg.RateEvents = def.RateEvents
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = def.RateWindow
	}

	return &WSGateway{
		log:            log,
		hub:            hub,
		cfg:            cfg,
		originPatterns: deriveOriginPatternsFromAllowedOrigins(cfg.AllowedOrigins),
	}
}

// Hub returns the subscriber set this gateway feeds.
func (g *WSGateway) Hub() *Hub { return g.hub }

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and streams feed events until either side closes.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// The server's read and write timeouts would otherwise cut the hijacked connection.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{FeedSubprotocol},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Info("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != FeedSubprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", FeedSubprotocol)
		_ = conn.Close(websocket.StatusPolicyViolation, "subprotocol "+FeedSubprotocol+" required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	now := time.Now().UTC()
	sessionID, err := NewSessionID(now)
	if err != nil {
		g.log.Error("ws.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	client := NewClient(sessionID, g.cfg.SendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Leave(sessionID)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	if !g.hub.Join(client) {
		shutdown(websocket.StatusGoingAway, "server shutting down")
		return
	}

	hello, err := NewEnvelope(TypeHello, HelloPayload{SessionID: sessionID, Subscribers: g.hub.Len()}, now)
	if err == nil {
		_ = g.enqueue(ctx, client, hello)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				// Hub.Close or Leave from elsewhere: finish the handshake from here.
				shutdown(websocket.StatusGoingAway, "server shutting down")
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	rl := newFrameLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

	// Reading is still required: it processes pongs and the peer's close frame.
readLoop:
	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		if !rl.allow(time.Now().UTC()) {
			g.trySendError(ctx, client, "rate_limited", "too many messages")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}
		g.trySendError(ctx, client, "read_only", "the feed does not accept messages")
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- send helpers ----

func (g *WSGateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	env, err := NewEnvelope(TypeError, ErrorPayload{Code: code, Message: msg}, time.Now().UTC())
	if err != nil {
		return
	}
	_ = g.enqueue(ctx, client, env)
}

func (g *WSGateway) enqueue(ctx context.Context, client *Client, env Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := marshalEnvelope(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	originHost := originHostOnly(origin)
	if originHost != "" && originHost == originHostOnly(r.Host) {
		return nil
	}

	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			return nil
		}
		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}
		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatternsFromAllowedOrigins maps the allow-list to the host
// patterns websocket.Accept matches with path.Match.
func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			seen["*"] = struct{}{}
			continue
		}
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
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

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
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

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
