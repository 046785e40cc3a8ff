package web

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

//go:embed static
var embedded embed.FS

// Page names.
const (
	PageIndex = "index.html"
	PageLogin = "login.html"
	PageAdmin = "admin.html"
)

// ErrorStatuses are the statuses that have a dedicated page.
var ErrorStatuses = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusInternalServerError,
}

// Pages serves the site's static files and error pages.
type Pages struct {
	fsys fs.FS
	log  *slog.Logger
}

// NewPages returns Pages backed by the embedded tree. A non-empty publicDir
// takes precedence for any file it contains.
func NewPages(publicDir string, log *slog.Logger) (*Pages, error) {
	if log == nil {
		log = slog.Default()
	}
	base, err := fs.Sub(embedded, "static")
	if err != nil {
		return nil, err
	}

	var fsys fs.FS = base
	if dir := strings.TrimSpace(publicDir); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("public dir: %w", err)
		}
		st, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("public dir: %w", err)
		}
		if !st.IsDir() {
			return nil, fmt.Errorf("public dir: %s is not a directory", abs)
		}
		fsys = overlayFS{os.DirFS(abs), base}
		log.Info("web.public_dir", "dir", abs)
	}
	return &Pages{fsys: fsys, log: log}, nil
}

// FS exposes the merged file tree.
func (p *Pages) FS() fs.FS { return p.fsys }

// Serve writes the named file with status. A missing file falls back to the
// 404 page, or to a plain-text body when even that is missing.
func (p *Pages) Serve(w http.ResponseWriter, r *http.Request, status int, name string) {
	body, err := fs.ReadFile(p.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && name != errorPageName(http.StatusNotFound) {
			p.log.Warn("web.page.missing", "page", name)
			p.Serve(w, r, http.StatusNotFound, errorPageName(http.StatusNotFound))
			return
		}
		p.log.Error("web.page.read.fail", "page", name, "err", err)
		http.Error(w, http.StatusText(status), status)
		return
	}

	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		ct = http.DetectContentType(body)
	}
	w.Header().Set("Content-Type", ct)
	if status >= 400 {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.WriteHeader(status)
	if r == nil || r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}

// ErrorPage renders the HTML page for status. Statuses without a page use 500.html.
func (p *Pages) ErrorPage(w http.ResponseWriter, r *http.Request, status int) {
	name := errorPageName(status)
	if _, err := fs.Stat(p.fsys, name); err != nil {
		name = errorPageName(http.StatusInternalServerError)
	}
	p.Serve(w, r, status, name)
}

// Fail renders a failure in the representation the client asked for.
func (p *Pages) Fail(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	if WantsJSON(r) {
		WriteError(w, status, code, msg)
		return
	}
	p.ErrorPage(w, r, status)
}

// ErrorPageHandler serves the error page for status with that status.
func (p *Pages) ErrorPageHandler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.ErrorPage(w, r, status)
	}
}

// Static serves files from the merged tree. Anything that is not a regular
// file is answered with the 404 page. PageAdmin is never served here; it is
// only reachable through the session-guarded route.
func (p *Pages) Static() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			p.Fail(w, r, http.StatusNotFound, "not_found", "not found")
			return
		}

		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = PageIndex
		}
		if name == PageAdmin {
			p.Fail(w, r, http.StatusNotFound, "not_found", "not found")
			return
		}
		st, err := fs.Stat(p.fsys, name)
		if err != nil || !st.Mode().IsRegular() {
			p.Fail(w, r, http.StatusNotFound, "not_found", "not found")
			return
		}
		if name == PageIndex {
			p.Serve(w, r, http.StatusOK, name)
			return
		}
		http.ServeFileFS(w, r, p.fsys, name)
	})
}

func errorPageName(status int) string {
	return fmt.Sprintf("%d.html", status)
}

// overlayFS resolves names against each layer in order.
type overlayFS []fs.FS

func (o overlayFS) Open(name string) (fs.File, error) {
	var firstErr error
	for _, layer := range o {
		f, err := layer.Open(name)
		if err == nil {
			return f, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return nil, firstErr
}
