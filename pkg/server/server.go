// Package server launches the gateway as a goroutine-per-core worker group,
// each with its own net.Listener bound to the same port via SO_REUSEPORT.
// Workers share no memory; they coordinate only through the filesystem (the
// cache root and object metadata files), matching the thread-per-core
// scheduling model the cache pipeline was designed around.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/originblock/blockcache/internal/logger"
)

// Config controls the worker group's listen address, count, and shutdown
// behavior.
type Config struct {
	// ListenAddress is the "host:port" every worker binds via SO_REUSEPORT.
	ListenAddress string

	// Workers is the number of independent listener+server goroutine groups.
	Workers int

	// ShutdownTimeout bounds how long Serve waits for in-flight requests to
	// drain once its context is cancelled, before forcing listener closure.
	ShutdownTimeout time.Duration
}

// Server runs Config.Workers independent HTTP servers sharing one port.
//
// Thread safety: Serve must only be called once per Server. Stop may be
// called concurrently with Serve to trigger shutdown early; it is idempotent.
type Server struct {
	cfg     Config
	handler http.Handler

	mu         sync.Mutex
	httpByWork []*http.Server
}

// New builds a Server that will serve handler once Serve is called.
func New(cfg Config, handler http.Handler) *Server {
	return &Server{cfg: cfg, handler: handler}
}

// Serve binds Config.Workers SO_REUSEPORT listeners on ListenAddress and
// serves the handler on each until ctx is cancelled, then drains in-flight
// requests up to ShutdownTimeout.
//
// Returns nil on graceful shutdown, or the first worker error encountered
// (other workers are stopped too, since a partial worker set serving the
// pool is worse than a clean full stop).
func (s *Server) Serve(ctx context.Context) error {
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	listeners := make([]net.Listener, 0, workers)
	for i := 0; i < workers; i++ {
		ln, err := listenReusePort(ctx, s.cfg.ListenAddress)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return fmt.Errorf("server: worker %d listen on %s: %w", i, s.cfg.ListenAddress, err)
		}
		listeners = append(listeners, ln)
	}

	s.mu.Lock()
	s.httpByWork = make([]*http.Server, workers)
	for i := range s.httpByWork {
		s.httpByWork[i] = &http.Server{Handler: s.handler}
	}
	s.mu.Unlock()

	logger.Info("gateway worker group listening", "address", s.cfg.ListenAddress, "workers", workers)

	errCh := make(chan error, workers)
	var wg sync.WaitGroup
	for i, ln := range listeners {
		wg.Add(1)
		go func(i int, ln net.Listener) {
			defer wg.Done()
			srv := s.httpByWork[i]
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("gateway worker stopped with error", "worker", i, "error", err)
				errCh <- err
				_ = s.shutdownAll()
			}
		}(i, ln)
	}

	go func() {
		<-ctx.Done()
		logger.Info("gateway shutdown signal received")
		if err := s.shutdownAll(); err != nil {
			logger.Warn("gateway graceful shutdown incomplete", "error", err)
		}
	}()

	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

// Stop initiates graceful shutdown of every worker, waiting up to
// ShutdownTimeout (or ctx's deadline, whichever is first) for in-flight
// requests to complete.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.shutdownAllWithContext(ctx)
}

func (s *Server) shutdownAll() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.shutdownAllWithContext(ctx)
}

func (s *Server) shutdownAllWithContext(ctx context.Context) error {
	s.mu.Lock()
	servers := append([]*http.Server(nil), s.httpByWork...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(servers))
	for i, srv := range servers {
		if srv == nil {
			continue
		}
		wg.Add(1)
		go func(i int, srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				errs[i] = err
			}
		}(i, srv)
	}
	wg.Wait()

	return errors.Join(errs...)
}
