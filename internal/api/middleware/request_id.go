package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/expertshelf/hub/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds client-supplied ids; longer ones are replaced.
const maxRequestIDLen = 128

// RequestID runs first in the chain: ensures every request has an X-Request-ID in context
// and in the response header. A client-sent X-Request-ID is propagated; otherwise one is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.Must(uuid.NewV7()).String()
		}

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(observability.WithRequestID(r.Context(), id)))
	})
}
