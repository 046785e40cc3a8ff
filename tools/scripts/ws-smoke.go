// Package main provides a CI-friendly smoke test for the excuses live feed.
//
// It validates:
//   - handshake + subprotocol selection
//   - feed.hello on connect
//   - admin login over HTTP
//   - add -> excuse.created fanout to every subscriber
//   - delete -> excuse.deleted fanout
//   - inbound frames are answered with a read_only error
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	feedSubprotocol = "excuses.feed.v1"
	maxReadBytes    = 1 << 20 // 1MiB

	typeHello   = "feed.hello"
	typeCreated = "excuse.created"
	typeDeleted = "excuse.deleted"
	typeError   = "error"
)

// envelope mirrors the feed wire format.
type envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type helloPayload struct {
	SessionID string `json:"session_id"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type excuseRecord struct {
	ID     int    `json:"id"`
	Excuse string `json:"excuse"`
}

type smokeClient struct {
	name      string
	conn      *websocket.Conn
	sessionID string

	inbox chan envelope
	errCh chan error
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:3000", "Server base URL")
		origin  = flag.String("origin", "", "Origin header to send (browser-like WS handshake)")
		user    = flag.String("user", os.Getenv("ADMIN_USERNAME"), "Admin username")
		pass    = flag.String("pass", os.Getenv("ADMIN_PASSWORD"), "Admin password")
		text    = flag.String("text", "The smoke test ate my homework.", "Excuse text to add")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := validateBaseURL(*baseURL)
	if err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}
	if *user == "" || *pass == "" {
		fatalf("admin credentials required (-user/-pass or ADMIN_USERNAME/ADMIN_PASSWORD)")
	}

	root := context.Background()
	feedURL := feedURLFor(base)

	a := mustConnect(root, "A", feedURL, *origin, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", feedURL, *origin, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A=%s B=%s feed=%s\n", a.sessionID, b.sessionID, feedURL)
	}

	httpc := mustLogin(root, base, *user, *pass, *timeout)

	created := mustAdd(root, httpc, base, *text)
	if *verbose {
		fmt.Printf("added: id=%d\n", created.ID)
	}

	for _, c := range []*smokeClient{a, b} {
		got := mustRecord(c.mustReadUntilType(root, typeCreated, *timeout))
		if got != created {
			fatalf("created mismatch (%s): got=%+v want=%+v", c.name, got, created)
		}
	}

	mustDelete(root, httpc, base, created.ID)
	for _, c := range []*smokeClient{a, b} {
		got := mustRecord(c.mustReadUntilType(root, typeDeleted, *timeout))
		if got.ID != created.ID {
			fatalf("deleted mismatch (%s): got=%d want=%d", c.name, got.ID, created.ID)
		}
	}

	mustReadOnly(root, a, *timeout)

	fmt.Println("OK")
}

func validateBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("missing host")
	}
	return u, nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func feedURLFor(base *url.URL) string {
	u := *base
	u.Scheme = "ws"
	if base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/excuses/feed"
	return u.String()
}

func mustConnect(parent context.Context, name, feedURL, origin string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, feedURL, &websocket.DialOptions{
		Subprotocols: []string{feedSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, feedSubprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	hello := c.mustReadUntilType(parent, typeHello, stepTimeout)
	var p helloPayload
	if err := json.Unmarshal(hello.Payload, &p); err != nil {
		fatalf("unmarshal feed.hello payload (%s): %v", name, err)
	}
	if strings.TrimSpace(p.SessionID) == "" {
		fatalf("feed.hello missing session_id (%s)", name)
	}
	c.sessionID = p.SessionID

	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if env.V != 1 || env.Type == "" || env.ID == "" {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %s", data):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == typeError {
				var ep errorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			// Other subscribers' edits may interleave; keep waiting.
		}
	}
}

func mustReadOnly(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	if err := c.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"excuse.created"}`)); err != nil {
		fatalf("write failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for read_only error (%s)", c.name)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for read_only (%s)", c.name)
			}
			if env.Type != typeError {
				continue
			}
			var ep errorPayload
			_ = json.Unmarshal(env.Payload, &ep)
			if ep.Code != "read_only" {
				fatalf("error code=%q want=read_only (%s)", ep.Code, c.name)
			}
			return
		}
	}
}

func mustLogin(parent context.Context, base *url.URL, user, pass string, stepTimeout time.Duration) *http.Client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		fatalf("cookiejar: %v", err)
	}
	c := &http.Client{
		Jar:     jar,
		Timeout: stepTimeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	form := url.Values{"username": {user}, "password": {pass}}
	resp := mustDo(parent, c, http.MethodPost, base.String()+"/login", "application/x-www-form-urlencoded", form.Encode())
	if resp.status != http.StatusFound {
		fatalf("login status=%d body=%s", resp.status, resp.body)
	}
	return c
}

func mustAdd(parent context.Context, c *http.Client, base *url.URL, text string) excuseRecord {
	body, _ := json.Marshal(map[string]string{"excuse": text})
	resp := mustDo(parent, c, http.MethodPost, base.String()+"/api/excuses", "application/json", string(body))
	if resp.status != http.StatusCreated {
		fatalf("add status=%d body=%s", resp.status, resp.body)
	}
	var rec excuseRecord
	if err := json.Unmarshal(resp.body, &rec); err != nil {
		fatalf("decode add response: %v", err)
	}
	return rec
}

func mustDelete(parent context.Context, c *http.Client, base *url.URL, id int) {
	resp := mustDo(parent, c, http.MethodDelete, fmt.Sprintf("%s/api/excuses/%d", base, id), "", "")
	if resp.status != http.StatusOK {
		fatalf("delete status=%d body=%s", resp.status, resp.body)
	}
}

type httpResult struct {
	status int
	body   []byte
}

func mustDo(ctx context.Context, c *http.Client, method, target, contentType, body string) httpResult {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		fatalf("build %s %s: %v", method, target, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return httpResult{status: resp.StatusCode, body: b}
}

func mustRecord(env envelope) excuseRecord {
	var rec excuseRecord
	if err := json.Unmarshal(env.Payload, &rec); err != nil {
		fatalf("decode %s payload: %v", env.Type, err)
	}
	return rec
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
