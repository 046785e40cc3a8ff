// Package excuseapi exposes the excuse list over HTTP.
package excuseapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"excuses/cmd/internal/excuse"
	"excuses/cmd/internal/web"

	"github.com/go-chi/chi/v5"
)

// Event types published after successful mutations.
const (
	EventCreated = "excuse.created"
	EventDeleted = "excuse.deleted"
)

// Mutation outcomes reported to a MutationObserver.
const (
	ResultOK       = "ok"
	ResultInvalid  = "invalid"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Publisher fans out change events to live subscribers.
type Publisher interface {
	Publish(eventType string, payload any)
}

// MutationObserver receives add/delete outcomes and the resulting record count.
type MutationObserver interface {
	ObserveMutation(op, result string)
	SetRecords(n int)
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, any) {}

type noopObserver struct{}

func (noopObserver) ObserveMutation(string, string) {}
func (noopObserver) SetRecords(int)                 {}

// Handler serves /api/excuses.
type Handler struct {
	log          *slog.Logger
	store        *excuse.Store
	pages        *web.Pages
	maxBodyBytes int64

	pub      Publisher
	observer MutationObserver
	feed     http.Handler
}

// HandlerOption configures optional dependencies.
type HandlerOption func(*Handler)

// WithPublisher sends created/deleted events to p.
func WithPublisher(p Publisher) HandlerOption {
	return func(h *Handler) {
		if h == nil || p == nil {
			return
		}
		h.pub = p
	}
}

// WithMutationObserver reports mutation outcomes, typically to metrics.
func WithMutationObserver(o MutationObserver) HandlerOption {
	return func(h *Handler) {
		if h == nil || o == nil {
			return
		}
		h.observer = o
	}
}

// WithFeed mounts a live change feed at /api/excuses/feed.
func WithFeed(feed http.Handler) HandlerOption {
	return func(h *Handler) {
		if h == nil || feed == nil {
			return
		}
		h.feed = feed
	}
}

// WithMaxBodyBytes bounds request bodies for add.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if h == nil || n <= 0 {
			return
		}
		h.maxBodyBytes = n
	}
}

// NewHandler constructs an excuse API handler.
func NewHandler(log *slog.Logger, store *excuse.Store, pages *web.Pages, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		return nil, errors.New("excuseapi: nil store")
	}
	if pages == nil {
		return nil, errors.New("excuseapi: nil pages")
	}

	h := &Handler{
		log:          log,
		store:        store,
		pages:        pages,
		maxBodyBytes: web.DefaultMaxBodyBytes,
		pub:          noopPublisher{},
		observer:     noopObserver{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	h.observer.SetRecords(store.Len())
	store.OnChange(h.applyChange)
	return h, nil
}

// applyChange runs under the store lock, so events and the record count
// follow commit order.
func (h *Handler) applyChange(c excuse.Change) {
	h.observer.SetRecords(c.Count)
	switch c.Op {
	case excuse.OpAdd:
		h.pub.Publish(EventCreated, c.Excuse)
	case excuse.OpDelete:
		h.pub.Publish(EventDeleted, c.Excuse)
	}
}

// Register wires the API routes. guard wraps the mutating endpoints.
func (h *Handler) Register(r chi.Router, guard func(http.Handler) http.Handler) {
	if h == nil || r == nil {
		return
	}
	r.Route("/api/excuses", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/random", h.handleRandom)
		if h.feed != nil {
			r.Handle("/feed", h.feed)
		}

		r.Group(func(r chi.Router) {
			if guard != nil {
				r.Use(guard)
			}
			r.Post("/", h.handleAdd)
			r.Delete("/{id}", h.handleDelete)
		})
	})
}

// ---- handlers ----

type addRequest struct {
	Excuse string `json:"excuse"`
}

type deleteResponse struct {
	Message string          `json:"message"`
	Deleted []excuse.Excuse `json:"deleted"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	web.WriteJSON(w, http.StatusOK, h.store.List())
}

func (h *Handler) handleRandom(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.Random()
	if err != nil {
		if errors.Is(err, excuse.ErrEmpty) {
			h.pages.Fail(w, r, http.StatusNotFound, "no_excuses", "no excuses available")
			return
		}
		h.log.Error("excuse.random.fail", "err", err)
		h.pages.Fail(w, r, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	web.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	text, err := h.readText(w, r)
	if err != nil {
		h.observer.ObserveMutation("add", ResultInvalid)
		h.pages.Fail(w, r, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	e, err := h.store.Add(text)
	if err != nil {
		switch {
		case errors.Is(err, excuse.ErrEmptyText):
			h.observer.ObserveMutation("add", ResultInvalid)
			h.pages.Fail(w, r, http.StatusBadRequest, "invalid_excuse", "excuse text is required")
		default:
			h.observer.ObserveMutation("add", ResultError)
			h.log.Error("excuse.add.fail", "err", err)
			h.pages.Fail(w, r, http.StatusInternalServerError, "server_error", "could not save excuse")
		}
		return
	}

	h.observer.ObserveMutation("add", ResultOK)
	h.log.Info("excuse.created", "id", e.ID, "by", actor(r))
	web.WriteJSON(w, http.StatusCreated, e)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		h.observer.ObserveMutation("delete", ResultNotFound)
		h.pages.Fail(w, r, http.StatusNotFound, "not_found", "excuse not found")
		return
	}

	removed, err := h.store.Delete(id)
	if err != nil {
		switch {
		case errors.Is(err, excuse.ErrNotFound):
			h.observer.ObserveMutation("delete", ResultNotFound)
			h.pages.Fail(w, r, http.StatusNotFound, "not_found", "excuse not found")
		default:
			h.observer.ObserveMutation("delete", ResultError)
			h.log.Error("excuse.delete.fail", "id", id, "err", err)
			h.pages.Fail(w, r, http.StatusInternalServerError, "server_error", "could not delete excuse")
		}
		return
	}

	h.observer.ObserveMutation("delete", ResultOK)
	h.log.Info("excuse.deleted", "id", removed.ID, "by", actor(r))
	web.WriteJSON(w, http.StatusOK, deleteResponse{
		Message: "Deleted successfully",
		Deleted: []excuse.Excuse{removed},
	})
}

// readText accepts {"excuse": "..."} or a form field named excuse.
func (h *Handler) readText(w http.ResponseWriter, r *http.Request) (string, error) {
	if web.IsJSONContent(r) {
		var req addRequest
		if err := web.DecodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
			return "", err
		}
		return req.Excuse, nil
	}

	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
		if err := r.ParseMultipartForm(h.maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return "", err
		}
		return r.PostForm.Get("excuse"), nil
	}
	return "", web.ErrBadBody
}
