package httpserver

import (
	"net/http"
	"time"
)

// New builds the admission gateway's HTTP server. The read and write
// timeouts are tight because every endpoint is a lightweight check; a slow
// client should never hold a connection while others queue behind the
// rate-limit window.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
