// Package dbftdebug serves a read-only HTTP view of a running consensus node:
// the engine status, its raw snapshot, and the finalized blocks in its store.
package dbftdebug

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/r3e-network/neodbft/dbft/dbftengine"
	"github.com/r3e-network/neodbft/dbft/dbftstore"
)

// StatusSource reports the engine's current state.
// [*github.com/r3e-network/neodbft/dbft/dbftdriver.Driver] satisfies it.
type StatusSource interface {
	Status(context.Context) (dbftengine.Status, error)
	Snapshot(context.Context) ([]byte, error)
}

type HTTPServer struct {
	done chan struct{}
}

type HTTPServerConfig struct {
	Listener net.Listener

	Status StatusSource
	Blocks dbftstore.BlockStore
}

// NewHTTPServer serves [NewHandler] on cfg.Listener
// until ctx is cancelled.
func NewHTTPServer(ctx context.Context, log *slog.Logger, cfg HTTPServerConfig) *HTTPServer {
	srv := &http.Server{
		Handler: NewHandler(log, cfg),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	h := &HTTPServer{
		done: make(chan struct{}),
	}
	go h.serve(log, cfg.Listener, srv)
	go h.waitForShutdown(ctx, srv)

	return h
}

func (h *HTTPServer) Wait() {
	<-h.done
}

func (h *HTTPServer) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-h.done:
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (h *HTTPServer) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(h.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("HTTP server shutting down")
		} else {
			log.Info("HTTP server shutting down due to error", "err", err)
		}
	}
}
