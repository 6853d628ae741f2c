// Package requesttime pins a single "now" per HTTP request. The validation
// engine reads it through requestcontext.Now, so every lockup check within
// one request is evaluated at the same instant.
package requesttime

import (
	"net/http"
	"time"

	"tranchebook/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and
// stores it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
