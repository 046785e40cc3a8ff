package excuseapi

import (
	"net/http"

	authapi "excuses/cmd/internal/auth/api"
)

func actor(r *http.Request) string {
	if name, ok := authapi.UsernameFromContext(r.Context()); ok {
		return name
	}
	return ""
}
