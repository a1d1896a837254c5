package response

import (
	"fmt"
	"io"

	"github.com/minumserver/minum/internal/headers"
)

// StatusCode represents HTTP status codes
type StatusCode int

const (
	StatusOK                  StatusCode = 200
	StatusCreated             StatusCode = 201
	StatusNoContent           StatusCode = 204
	StatusBadRequest          StatusCode = 400
	StatusNotFound            StatusCode = 404
	StatusInternalServerError StatusCode = 500
)

// statusText maps status codes to reason phrases
var statusText = map[StatusCode]string{
	StatusOK:                  "OK",
	StatusCreated:             "Created",
	StatusNoContent:           "No Content",
	StatusBadRequest:          "Bad Request",
	StatusNotFound:            "Not Found",
	StatusInternalServerError: "Internal Server Error",
}

// writerState tracks what's been written so far
type writerState int

const (
	stateStart writerState = iota
	stateStatusWritten
	stateHeadersWritten
	stateBodyWritten
)

// Writer writes an HTTP/1.1 response to an io.Writer, enforcing the
// status-line -> headers -> body write order.
type Writer struct {
	w     io.Writer
	state writerState
}

// NewWriter creates a new response writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, state: stateStart}
}

// WriteStatusLine writes the HTTP status line
func (w *Writer) WriteStatusLine(code StatusCode) error {
	if w.state != stateStart {
		return fmt.Errorf("status line already written")
	}

	reason, ok := statusText[code]
	if !ok {
		reason = "Unknown"
	}

	statusLine := fmt.Sprintf("HTTP/1.1 %d %s\r\n", code, reason)
	if _, err := w.w.Write([]byte(statusLine)); err != nil {
		return err
	}

	w.state = stateStatusWritten
	return nil
}

// WriteHeaders writes all HTTP headers
func (w *Writer) WriteHeaders(h *headers.Headers) error {
	if w.state != stateStatusWritten {
		return fmt.Errorf("must write status line before headers")
	}

	for _, line := range h.Strings() {
		if _, err := w.w.Write([]byte(line + "\r\n")); err != nil {
			return err
		}
	}

	if _, err := w.w.Write([]byte("\r\n")); err != nil {
		return err
	}

	w.state = stateHeadersWritten
	return nil
}

// WriteBody writes the complete response body
func (w *Writer) WriteBody(data []byte) error {
	if w.state != stateHeadersWritten {
		return fmt.Errorf("must write headers before body")
	}

	if len(data) == 0 {
		w.state = stateBodyWritten
		return nil
	}

	if _, err := w.w.Write(data); err != nil {
		return err
	}

	w.state = stateBodyWritten
	return nil
}
