// Package caller resolves the ledger caller identity for each request.
//
// Authentication proper (sessions, tokens, signatures) sits in front of this
// service; by the time a request arrives here the deployment's gateway has
// verified who is calling and forwards the verified address in the
// X-Ledger-Caller header.
package caller

import (
	"context"
	"log/slog"
	"net/http"

	"tranchebook/pkg/domain"
	request "tranchebook/pkg/platform/middleware/request"
	"tranchebook/pkg/requestcontext"
)

const headerCaller = "X-Ledger-Caller"

// writeJSONError writes a JSON error response with the given status code and
// error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + errCode + `","error_description":"` + errDesc + `"}`))
}

// RequireCaller rejects requests without a valid X-Ledger-Caller header and
// injects the parsed address into the context for handlers.
func RequireCaller(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := r.Header.Get(headerCaller)
			if raw == "" {
				logger.WarnContext(ctx, "request without caller identity",
					"request_id", request.GetRequestID(ctx),
					"path", r.URL.Path,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing X-Ledger-Caller header")
				return
			}

			addr, err := domain.ParseAddress(raw)
			if err != nil {
				logger.WarnContext(ctx, "request with malformed caller identity",
					"request_id", request.GetRequestID(ctx),
					"error", err,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Malformed X-Ledger-Caller header")
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, addr)))
		})
	}
}

// GetCaller retrieves the caller address from the context.
func GetCaller(ctx context.Context) domain.Address {
	return requestcontext.Caller(ctx)
}
