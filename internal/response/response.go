package response

import (
	"strconv"

	"github.com/minumserver/minum/internal/headers"
)

// Response is the plain value a handler returns: a status code, any
// headers beyond what the dispatcher fills in automatically, and a body.
// It carries no behavior of its own; Writer does the actual wire
// serialization.
type Response struct {
	StatusCode   StatusCode
	ExtraHeaders *headers.Headers
	Body         []byte
}

// New builds a Response with no extra headers.
func New(code StatusCode, body []byte) Response {
	return Response{StatusCode: code, Body: body}
}

// Text builds a text/plain Response with the given status code.
func Text(code StatusCode, body string) Response {
	h := headers.NewHeaders()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return Response{StatusCode: code, ExtraHeaders: h, Body: []byte(body)}
}

// JSON builds a Response with an application/json Content-Type.
func JSON(code StatusCode, body []byte) Response {
	h := headers.NewHeaders()
	h.Set("Content-Type", "application/json; charset=utf-8")
	return Response{StatusCode: code, ExtraHeaders: h, Body: body}
}

// WriteResponse serializes r to the wire: status line, headers (filling
// in Content-Length if the caller didn't set one), then body. The
// dispatcher does not use it: it calls WriteStatusLine, WriteHeaders and
// WriteBody itself so it can add its connection-level headers.
func (w *Writer) WriteResponse(r Response) error {
	if err := w.WriteStatusLine(r.StatusCode); err != nil {
		return err
	}

	h := r.ExtraHeaders
	if h == nil {
		h = headers.NewHeaders()
	}
	if _, ok := h.Get("content-length"); !ok {
		h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	}

	if err := w.WriteHeaders(h); err != nil {
		return err
	}
	return w.WriteBody(r.Body)
}
