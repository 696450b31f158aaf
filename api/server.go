// Package api exposes the settlement and jackpot pipeline over HTTP:
// the synchronous bet settlement endpoint, asynchronous queue admission
// for contributions and wins, pool dashboards, and the operational
// surface (health, queue counters, prometheus metrics, live pool feed).
package api

import (
	"fmt"
	"net/http"
	"time"
)

// NewServer builds the HTTP server with conservative timeouts. Callers
// own ListenAndServe and Shutdown. Websocket upgrades clear the write
// deadline on hijack, so the pool feed outlives WriteTimeout.
func NewServer(port int, deps Deps) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(deps),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
