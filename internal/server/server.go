// Package server implements the accept loop: bind a plaintext listener
// (and optionally a TLS one), hand each accepted connection to a
// bounded worker pool, and submit it to the dispatcher.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/minumserver/minum/internal/config"
	"github.com/minumserver/minum/internal/dispatcher"
	"github.com/minumserver/minum/internal/logging"
	"github.com/minumserver/minum/internal/socket"
)

// Server owns the listeners and worker pool. Construct one with New,
// call ListenAndServe to start accepting, and Shutdown to stop.
type Server struct {
	cfg        config.Constants
	dispatcher *dispatcher.Dispatcher
	logger     logging.Logger
	tlsConfig  *tls.Config

	listener    net.Listener
	tlsListener net.Listener

	sem    chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New builds a Server. tlsConfig may be nil; it is only consulted if
// cfg.SecureServerPort is non-zero.
func New(cfg config.Constants, d *dispatcher.Dispatcher, logger logging.Logger, tlsConfig *tls.Config) *Server {
	if logger == nil {
		logger = logging.NullLogger{}
	}
	poolSize := cfg.MaxConcurrentConns
	if poolSize <= 0 {
		poolSize = 512
	}
	return &Server{
		cfg:        cfg,
		dispatcher: d,
		logger:     logger,
		tlsConfig:  tlsConfig,
		sem:        make(chan struct{}, poolSize),
	}
}

// ListenAndServe binds the configured listeners and accepts connections
// until Shutdown is called. It blocks until both accept loops have
// exited.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.HostName, s.cfg.ServerPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding plaintext listener on %s: %w", addr, err)
	}
	s.listener = ln

	var tlsLn net.Listener
	if s.cfg.SecureServerPort != 0 {
		if s.tlsConfig == nil {
			return fmt.Errorf("secure_server_port set but no TLS config provided")
		}
		secureAddr := fmt.Sprintf("%s:%d", s.cfg.HostName, s.cfg.SecureServerPort)
		tlsLn, err = tls.Listen("tcp", secureAddr, s.tlsConfig)
		if err != nil {
			return fmt.Errorf("binding TLS listener on %s: %w", secureAddr, err)
		}
		s.tlsListener = tlsLn
	}

	var loopWg sync.WaitGroup
	loopWg.Add(1)
	go func() {
		defer loopWg.Done()
		s.acceptLoop(ln)
	}()

	if tlsLn != nil {
		loopWg.Add(1)
		go func() {
			defer loopWg.Done()
			s.acceptLoop(tlsLn)
		}()
	}

	loopWg.Wait()
	return nil
}

// acceptLoop accepts connections from ln until it closes, submitting
// each to the worker pool. Transient errors are retried with capped
// exponential backoff rather than spinning or giving up.
func (s *Server) acceptLoop(ln net.Listener) {
	backoff := 5 * time.Millisecond
	const maxBackoff = time.Second

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.logger.Warn("accept failed, retrying", logging.Field{Key: "error", Value: err.Error()}, logging.Field{Key: "backoff_ms", Value: backoff.Milliseconds()})
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = 5 * time.Millisecond

		s.sem <- struct{}{}
		s.wg.Add(1)
		go s.serve(conn)
	}
}

// serve wraps conn in a socket.Wrapper and hands it to the dispatcher,
// releasing its worker-pool slot on return. The idle timeout is armed
// fresh before every read inside socket.NewTCP's Wrapper, not just once
// here, so a slow-but-active client isn't cut off mid-connection.
func (s *Server) serve(conn net.Conn) {
	defer func() {
		s.wg.Done()
		<-s.sem
	}()

	sw := socket.NewTCP(conn, 4096, s.cfg.SocketTimeout())
	s.dispatcher.Handle(sw)
}

// Shutdown closes both listeners, then waits for in-flight connections
// to finish, up to the configured grace period or ctx's deadline,
// whichever is shorter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closed.Store(true)

	if s.listener != nil {
		s.listener.Close()
	}
	if s.tlsListener != nil {
		s.tlsListener.Close()
	}

	grace := s.cfg.ShutdownGrace()
	graceCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-graceCtx.Done():
		return fmt.Errorf("shutdown grace period elapsed with connections still in flight")
	}
}
