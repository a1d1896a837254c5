// Package httprequest holds the Request type the dispatcher assembles
// from a start line, header block, and decoded body before handing it to
// a registered handler.
package httprequest

import (
	"github.com/minumserver/minum/internal/body"
	"github.com/minumserver/minum/internal/headers"
	"github.com/minumserver/minum/internal/startline"
)

// Request is the fully parsed, in-memory view of one HTTP request that
// handlers receive. It is assembled once per request by the dispatcher
// and never mutated afterward.
type Request struct {
	StartLine  startline.StartLine
	Headers    *headers.Headers
	Body       body.Body
	RemoteAddr string
}

// Method is a convenience accessor for the start line's method.
func (r Request) Method() startline.Method {
	return r.StartLine.Method
}

// Path returns the case-preserved, query-stripped request path.
func (r Request) Path() string {
	return r.StartLine.PathDetails.IsolatedPath
}

// Query returns the decoded query-string parameters.
func (r Request) Query() map[string]string {
	return r.StartLine.PathDetails.Query
}
