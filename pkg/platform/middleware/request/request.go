// Package request assigns every HTTP request an id used to correlate logs.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"openletter/pkg/requestcontext"
)

// HeaderRequestID is echoed on responses and honoured on inbound requests.
const HeaderRequestID = "X-Request-ID"

const maxInboundIDLength = 64

// RequestID reuses a sane inbound X-Request-ID or generates a new UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > maxInboundIDLength {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request id from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
