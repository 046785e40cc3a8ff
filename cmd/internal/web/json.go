package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// DefaultMaxBodyBytes bounds request bodies when callers pass a non-positive limit.
const DefaultMaxBodyBytes int64 = 64 << 10

// ErrBadBody is returned by DecodeJSON for any malformed request body.
var ErrBadBody = errors.New("invalid request body")

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

// WriteJSON writes v with status as an uncached JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the {"error":{"code","message"}} body.
func WriteError(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

// DecodeJSON decodes exactly one JSON value from the body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrBadBody
	}
	defer func() { _ = r.Body.Close() }()

	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	if err := dec.Decode(dst); err != nil {
		return errors.Join(ErrBadBody, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.Join(ErrBadBody, errors.New("extra data after JSON value"))
	}
	return nil
}
