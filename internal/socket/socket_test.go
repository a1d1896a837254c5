package socket

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLineStripsTrailingCRLF(t *testing.T) {
	sw := NewPipe(strings.NewReader("GET / HTTP/1.1\r\n"), &bytes.Buffer{}, "1.2.3.4:1")
	line, err := sw.ReadLine(1024)
	require.NoError(t, err)
	assert.Equal(t, "GET / HTTP/1.1", string(line))
}

func TestReadLineAcceptsContentExactlyAtLimit(t *testing.T) {
	content := strings.Repeat("a", 10)
	sw := NewPipe(strings.NewReader(content+"\r\n"), &bytes.Buffer{}, "1.2.3.4:1")
	line, err := sw.ReadLine(10)
	require.NoError(t, err)
	assert.Equal(t, content, string(line))
}

func TestReadLineRejectsContentOverLimit(t *testing.T) {
	content := strings.Repeat("a", 11)
	sw := NewPipe(strings.NewReader(content+"\r\n"), &bytes.Buffer{}, "1.2.3.4:1")
	_, err := sw.ReadLine(10)
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestReadLineRejectsPaddingWithCarriageReturns(t *testing.T) {
	raw := strings.Repeat("a", 10) + strings.Repeat("\r", 50) + "\n"
	sw := NewPipe(strings.NewReader(raw), &bytes.Buffer{}, "1.2.3.4:1")
	_, err := sw.ReadLine(10)
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestReadLineReturnsNilOnCleanEOF(t *testing.T) {
	sw := NewPipe(strings.NewReader(""), &bytes.Buffer{}, "1.2.3.4:1")
	line, err := sw.ReadLine(1024)
	require.NoError(t, err)
	assert.Nil(t, line)
}

func TestReadExactReadsExactlyN(t *testing.T) {
	sw := NewPipe(strings.NewReader("hello world"), &bytes.Buffer{}, "1.2.3.4:1")
	got, err := sw.ReadExact(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestCloseTracksState(t *testing.T) {
	sw := NewPipe(strings.NewReader(""), &bytes.Buffer{}, "1.2.3.4:1")
	assert.False(t, Closed(sw))
	require.NoError(t, sw.Close())
	assert.True(t, Closed(sw))
}

// TestIdleTimeoutIsPerReadNotPerConnection proves the idle timeout is
// re-armed on every read rather than set once at construction: a
// client that writes slowly, with gaps shorter than the idle timeout,
// must not be disconnected just because the total connection lifetime
// exceeds it.
func TestIdleTimeoutIsPerReadNotPerConnection(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	idleTimeout := 80 * time.Millisecond
	sw := NewTCP(serverConn, 0, idleTimeout)

	// Each gap is shorter than idleTimeout, but together they exceed it.
	go func() {
		clientConn.Write([]byte("GET / HTTP/1.1\r\n"))
		time.Sleep(idleTimeout * 3 / 4)
		clientConn.Write([]byte("Host: x\r\n"))
		time.Sleep(idleTimeout * 3 / 4)
		clientConn.Write([]byte("\r\n"))
	}()

	for _, want := range []string{"GET / HTTP/1.1", "Host: x", ""} {
		line, err := sw.ReadLine(1024)
		require.NoError(t, err)
		assert.Equal(t, want, string(line))
	}
}

func TestIdleTimeoutFiresWhenClientGoesQuiet(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	sw := NewTCP(serverConn, 0, 20*time.Millisecond)

	_, err := sw.ReadLine(1024)
	assert.Error(t, err)
}
