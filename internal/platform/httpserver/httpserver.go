package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

// New builds the gateway's HTTP server. Evidence uploads arrive as large
// multipart bodies over possibly slow links, so no global read or write
// deadline is set; the upload handler bounds body size and the middleware
// chain bounds handler time.
func New(addr string, handler http.Handler, log *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelError),
	}
}
