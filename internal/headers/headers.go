// Package headers implements the HTTP/1.1 header-block parser.
//
// Headers are read line by line until a blank line is found. Lookup is
// case-insensitive; duplicate header names are preserved as a list in the
// order they were seen.
package headers

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// DefaultMaxLines bounds the number of header lines a Headers value will
// accept when no explicit limit is configured.
const DefaultMaxLines = 1000

// field is a single parsed header line, kept in original case and in the
// order it was received.
type field struct {
	name  string
	value string
}

// Headers holds a parsed set of HTTP header lines.
type Headers struct {
	fields   []field
	index    map[string][]string // lowercased name -> values, insertion order
	maxLines int
}

// NewHeaders returns an empty header set with the default line limit.
func NewHeaders() *Headers {
	return NewHeadersWithLimit(DefaultMaxLines)
}

// NewHeadersWithLimit returns an empty header set that rejects a header
// block longer than maxLines lines. A non-positive maxLines falls back to
// DefaultMaxLines.
func NewHeadersWithLimit(maxLines int) *Headers {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Headers{
		index:    make(map[string][]string),
		maxLines: maxLines,
	}
}

// Get returns the first value stored for key, case-insensitively.
func (h *Headers) Get(key string) (string, bool) {
	values := h.index[strings.ToLower(key)]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// GetAll returns every value stored for key, in the order received.
func (h *Headers) GetAll(key string) []string {
	return h.index[strings.ToLower(key)]
}

// GetAllHeaders exposes the full lowercase-keyed index.
func (h *Headers) GetAllHeaders() map[string][]string {
	return h.index
}

// Strings renders every header line as "Name: value" in the order they
// were received. Used by response.Writer to serialize a header block.
func (h *Headers) Strings() []string {
	out := make([]string, 0, len(h.fields))
	for _, f := range h.fields {
		out = append(out, f.name+": "+f.value)
	}
	return out
}

// Set replaces all values for key with a single value.
func (h *Headers) Set(key, value string) {
	lower := strings.ToLower(key)
	h.index[lower] = []string{value}
	kept := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.name, key) {
			kept = append(kept, f)
		}
	}
	h.fields = append(kept, field{name: key, value: value})
}

// Add appends value to whatever is already stored for key.
func (h *Headers) Add(key, value string) {
	lower := strings.ToLower(key)
	h.index[lower] = append(h.index[lower], value)
	h.fields = append(h.fields, field{name: key, value: value})
}

// Del removes every value stored for key.
func (h *Headers) Del(key string) {
	delete(h.index, strings.ToLower(key))
	kept := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.name, key) {
			kept = append(kept, f)
		}
	}
	h.fields = kept
}

// Clone returns an independent copy of h. Callers that need to add
// connection-specific headers (Date, Server, Keep-Alive) to a Headers
// value that might be shared, such as a static asset's cached response,
// must clone it first rather than mutating it in place.
func (h *Headers) Clone() *Headers {
	clone := &Headers{
		fields:   make([]field, len(h.fields)),
		index:    make(map[string][]string, len(h.index)),
		maxLines: h.maxLines,
	}
	copy(clone.fields, h.fields)
	for k, v := range h.index {
		values := make([]string, len(v))
		copy(values, v)
		clone.index[k] = values
	}
	return clone
}

var crlf = []byte("\r\n")

// Parse consumes header lines from data until a blank line terminates the
// block or data runs out. It returns the number of bytes consumed, whether
// the header block is complete, and any protocol error encountered.
func (h *Headers) Parse(data []byte) (int, bool, error) {
	if h.index == nil {
		h.index = make(map[string][]string)
	}
	if h.maxLines <= 0 {
		h.maxLines = DefaultMaxLines
	}

	read := 0
	for {
		idx := bytes.Index(data[read:], crlf)
		if idx == -1 {
			break // need more data
		}

		if idx == 0 {
			read += 2
			return read, true, nil
		}

		line := data[read : read+idx]

		if line[0] == ' ' || line[0] == '\t' {
			return read, false, fmt.Errorf("obsolete line folding not supported")
		}

		name, value, err := parseHeaderLine(line)
		if err != nil {
			return read, false, err
		}

		if len(h.fields) >= h.maxLines {
			return read, false, fmt.Errorf("too many header lines (max %d)", h.maxLines)
		}
		h.Add(name, value)

		read += idx + 2
	}

	return read, false, nil
}

func parseHeaderLine(line []byte) (string, string, error) {
	colonIdx := bytes.IndexByte(line, ':')
	if colonIdx == -1 {
		return "", "", fmt.Errorf("malformed header: no colon in %q", line)
	}

	name := line[:colonIdx]
	value := bytes.TrimSpace(line[colonIdx+1:])

	if bytes.ContainsAny(name, " \t") {
		return "", "", fmt.Errorf("malformed header: whitespace in name %q", name)
	}
	for _, b := range name {
		if !isValidHeaderChar(b) {
			return "", "", fmt.Errorf("invalid character in header name: %q", b)
		}
	}

	return string(name), string(value), nil
}

func isValidHeaderChar(b byte) bool {
	return (b >= 'A' && b <= 'Z') ||
		(b >= 'a' && b <= 'z') ||
		(b >= '0' && b <= '9') ||
		b == '!' || b == '#' || b == '$' || b == '%' || b == '&' ||
		b == '\'' || b == '*' || b == '+' || b == '-' || b == '.' ||
		b == '^' || b == '_' || b == '`' || b == '|' || b == '~'
}

// ContentType returns the lowercased Content-Type header, or "" if absent.
func (h *Headers) ContentType() string {
	v, ok := h.Get("content-type")
	if !ok {
		return ""
	}
	return strings.ToLower(v)
}

// ContentLength returns the parsed Content-Length header, or 0 if absent
// or malformed.
func (h *Headers) ContentLength() int64 {
	v, ok := h.Get("content-length")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// IsChunked reports whether Transfer-Encoding names "chunked".
func (h *Headers) IsChunked() bool {
	for _, v := range h.GetAll("transfer-encoding") {
		if connectionHasToken(v, "chunked") {
			return true
		}
	}
	return false
}

// HasKeepAlive reports whether the Connection header carries the
// keep-alive token, case-insensitively.
func (h *Headers) HasKeepAlive() bool {
	v, ok := h.Get("connection")
	return ok && connectionHasToken(v, "keep-alive")
}

// HasConnectionClose reports whether the Connection header carries the
// close token, case-insensitively.
func (h *Headers) HasConnectionClose() bool {
	v, ok := h.Get("connection")
	return ok && connectionHasToken(v, "close")
}

func connectionHasToken(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
