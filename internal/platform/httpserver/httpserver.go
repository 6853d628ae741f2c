// Package httpserver constructs the ledger's HTTP listener.
package httpserver

import (
	"net/http"
	"time"
)

// New builds the server for the given address. Per-request deadlines come
// from the router's timeout middleware; the server itself only bounds the
// header read.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
