package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minumserver/minum/internal/config"
	"github.com/minumserver/minum/internal/dispatcher"
	"github.com/minumserver/minum/internal/httprequest"
	"github.com/minumserver/minum/internal/logging"
	"github.com/minumserver/minum/internal/metrics"
	"github.com/minumserver/minum/internal/registry"
	"github.com/minumserver/minum/internal/response"
	"github.com/minumserver/minum/internal/security"
	"github.com/minumserver/minum/internal/staticfiles"
	"github.com/minumserver/minum/internal/startline"
)

func freePort(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func newTestServer(t *testing.T) (*Server, *registry.Registry, int) {
	reg := registry.New()
	static := staticfiles.New()
	brig := security.NewBrig(false, 0)
	inv := security.NewUnderInvestigation(nil)
	d := dispatcher.New(reg, static, brig, inv, logging.NullLogger{}, metrics.New(), config.Default())

	cfg := config.Default()
	cfg.HostName = "127.0.0.1"
	cfg.ServerPort = freePort(t)
	cfg.MaxConcurrentConns = 4
	cfg.ShutdownGraceMillis = 1000

	s := New(cfg, d, logging.NullLogger{}, nil)
	return s, reg, cfg.ServerPort
}

func TestListenAndServeAcceptsConnections(t *testing.T) {
	s, reg, port := newTestServer(t)
	reg.Register(startline.GET, "/ping", func(httprequest.Request) response.Response {
		return response.Text(response.StatusOK, "pong")
	})

	go s.ListenAndServe()
	waitForPort(t, port)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /ping HTTP/1.1\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _ := conn.Read(buf)
	got := string(buf[:n])

	assert.Contains(t, got, "HTTP/1.1 200 OK")
	assert.Contains(t, got, "pong")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestShutdownWaitsForInFlightThenReturns(t *testing.T) {
	s, reg, port := newTestServer(t)
	started := make(chan struct{})
	var finished atomic.Bool
	reg.Register(startline.GET, "/slow", func(httprequest.Request) response.Response {
		close(started)
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
		return response.Text(response.StatusOK, "done")
	})

	go s.ListenAndServe()
	waitForPort(t, port)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("GET /slow HTTP/1.1\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
	assert.True(t, finished.Load(), "Shutdown must not return before the in-flight handler finishes")
}

func TestShutdownIsIdempotentWithNoConnections(t *testing.T) {
	s, _, port := newTestServer(t)
	go s.ListenAndServe()
	waitForPort(t, port)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Shutdown(ctx))
}

func waitForPort(t *testing.T, port int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server on port %d never came up", port)
}
