// Package socket provides the thin, testable abstraction over an accepted
// TCP connection that the rest of the server builds on: line-oriented
// reads, bulk byte reads, bulk writes, remote address, and close.
//
// The dispatcher only ever sees the Wrapper interface, never a concrete
// net.Conn, so tests can swap in an in-memory pipe (see NewPipe).
package socket

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// ErrLineTooLong is returned by ReadLine when a line exceeds the
// configured maximum before a CRLF is found.
var ErrLineTooLong = errors.New("client sent more bytes than allowed for a single line")

// Wrapper is the socket abstraction the dispatcher depends on. The
// production implementation wraps a net.Conn; tests use an in-memory
// implementation built on net.Pipe or a bytes.Buffer.
type Wrapper interface {
	// ReadLine reads a single CRLF-terminated line, stripping the
	// trailing CRLF, bounded by maxBytes. Returns (nil, nil) on a clean
	// EOF with no bytes read (the "client stopped talking" case).
	ReadLine(maxBytes int) ([]byte, error)
	// ReadExact reads exactly n bytes, blocking until they arrive or an
	// error (including EOF) occurs.
	ReadExact(n int) ([]byte, error)
	// Write writes p in full.
	Write(p []byte) (int, error)
	// RemoteAddr returns the textual remote address, used as the brig's
	// jail key and in log lines.
	RemoteAddr() string
	// SetDeadline bounds the next read/write pair, per connection.
	SetDeadline(t time.Time) error
	// Close releases the underlying connection. Safe to call more than
	// once.
	Close() error
}

// tcpWrapper is the production Wrapper, backed by a net.Conn.
type tcpWrapper struct {
	conn        net.Conn
	br          *bufio.Reader
	idleTimeout time.Duration
}

// NewTCP wraps an accepted connection. bufSize sizes the internal read
// buffer; 0 selects bufio's default. idleTimeout, if positive, is
// re-armed as the connection's deadline before every blocking read, so
// it behaves as an idle timeout (time between reads) rather than a
// single deadline for the connection's whole lifetime. Pass 0 to leave
// deadlines unmanaged.
func NewTCP(conn net.Conn, bufSize int, idleTimeout time.Duration) Wrapper {
	var br *bufio.Reader
	if bufSize > 0 {
		br = bufio.NewReaderSize(conn, bufSize)
	} else {
		br = bufio.NewReader(conn)
	}
	return &tcpWrapper{conn: conn, br: br, idleTimeout: idleTimeout}
}

func (w *tcpWrapper) armDeadline() {
	if w.idleTimeout > 0 {
		w.conn.SetDeadline(time.Now().Add(w.idleTimeout))
	}
}

func (w *tcpWrapper) ReadLine(maxBytes int) ([]byte, error) {
	w.armDeadline()
	return readLine(w.br, maxBytes)
}

func (w *tcpWrapper) ReadExact(n int) ([]byte, error) {
	w.armDeadline()
	return readExact(w.br, n)
}

func (w *tcpWrapper) Write(p []byte) (int, error) {
	return w.conn.Write(p)
}

func (w *tcpWrapper) RemoteAddr() string {
	return w.conn.RemoteAddr().String()
}

func (w *tcpWrapper) SetDeadline(t time.Time) error {
	return w.conn.SetDeadline(t)
}

func (w *tcpWrapper) Close() error {
	return w.conn.Close()
}

// readLine is shared by the TCP and in-memory implementations: read byte
// by byte (buffered, so this is cheap) until CRLF or EOF, enforcing
// maxBytes. The bound allows one byte of slack beyond maxBytes so a line
// whose content is exactly maxBytes long is still accepted once its
// trailing CR is counted; anything beyond that is rejected regardless of
// byte value, so a line can't dodge the limit by padding itself with CRs.
func readLine(br *bufio.Reader, maxBytes int) ([]byte, error) {
	var line []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF && len(line) == 0 {
				return nil, nil
			}
			return nil, fmt.Errorf("reading line: %w", err)
		}
		if b == '\n' {
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			return line, nil
		}
		line = append(line, b)
		if len(line) > maxBytes+1 {
			return nil, ErrLineTooLong
		}
	}
}

func readExact(br *bufio.Reader, n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, fmt.Errorf("reading %d bytes: %w", n, err)
	}
	return buf, nil
}

// pipeWrapper is an in-memory Wrapper for tests: reads come from an
// io.Reader, writes go to an io.Writer, and Close/RemoteAddr are
// configurable directly rather than derived from a real socket.
type pipeWrapper struct {
	br     *bufio.Reader
	w      io.Writer
	addr   string
	closed bool
}

// NewPipe builds a Wrapper over separate reader/writer halves, for tests
// that want to feed raw request bytes and capture raw response bytes
// without a real socket.
func NewPipe(r io.Reader, w io.Writer, remoteAddr string) Wrapper {
	return &pipeWrapper{br: bufio.NewReader(r), w: w, addr: remoteAddr}
}

func (p *pipeWrapper) ReadLine(maxBytes int) ([]byte, error) {
	return readLine(p.br, maxBytes)
}

func (p *pipeWrapper) ReadExact(n int) ([]byte, error) {
	return readExact(p.br, n)
}

func (p *pipeWrapper) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

func (p *pipeWrapper) RemoteAddr() string {
	return p.addr
}

func (p *pipeWrapper) SetDeadline(time.Time) error {
	return nil
}

func (p *pipeWrapper) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close was called, for tests asserting invariant
// 1 from spec.md §8 ("the socket is closed exactly once on every exit
// path").
func Closed(w Wrapper) bool {
	if p, ok := w.(*pipeWrapper); ok {
		return p.closed
	}
	return false
}
