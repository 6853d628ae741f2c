// Package request assigns each HTTP request a unique ID for log correlation.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"tranchebook/pkg/requestcontext"
)

const headerRequestID = "X-Request-Id"

// RequestID attaches a request ID to the context and the response. An
// inbound X-Request-Id header is honored so IDs survive proxy hops.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(headerRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		w.Header().Set(headerRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
