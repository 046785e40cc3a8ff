package web

import (
	"mime"
	"net/http"
	"strings"
)

// WantsJSON reports whether a failure for r should be rendered as JSON.
// API paths always get JSON; elsewhere the Accept or Content-Type header decides.
func WantsJSON(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.URL != nil && strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	if IsJSONContent(r) {
		return true
	}
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mt == "application/json" {
			return true
		}
		if mt == "text/html" {
			return false
		}
	}
	return false
}

// IsJSONContent reports whether the request body is declared as JSON.
func IsJSONContent(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}
