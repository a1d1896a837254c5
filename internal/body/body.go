// Package body implements the BodyProcessor: it reads and decodes a
// request body from a socket once the start line and headers have been
// parsed, choosing a strategy from the Content-Type and Transfer-Encoding
// headers.
package body

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/minumserver/minum/internal/headers"
	"github.com/minumserver/minum/internal/socket"
	"github.com/minumserver/minum/internal/startline"
)

// ErrBodyTooLarge is returned once the cumulative bytes read for a body
// exceed the maxBytes limit passed to Process. The dispatcher maps this to
// a 413 response.
var ErrBodyTooLarge = errors.New("request body exceeds configured maximum size")

// Part is a single section of a multipart/form-data body.
type Part struct {
	Headers  *headers.Headers
	Name     string
	Filename string
	Body     []byte
}

// Body is the decoded result of processing a request body. At most one of
// Form or Parts is populated: Form by the urlencoded strategy, Parts by
// the multipart strategy, neither by the chunked or raw strategies; Raw
// always holds the bytes actually read off the wire (the chunked strategy
// excepted, where Raw holds the reassembled, de-chunked payload).
type Body struct {
	Raw   []byte
	Form  map[string]string
	Parts map[string]Part
}

// Empty returns the zero-value Body used for requests with no body.
func Empty() Body {
	return Body{}
}

// Process reads a request body off sw according to h, enforcing a
// cumulative maxBytes ceiling across every strategy. A non-positive
// maxBytes means unbounded.
func Process(sw socket.Wrapper, h *headers.Headers, maxBytes int64) (Body, error) {
	rawCT, _ := h.Get("content-type") // case-preserved; ToLower only for matching, never for the boundary value
	ct := strings.ToLower(rawCT)

	switch {
	case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
		return processURLEncoded(sw, h, maxBytes)
	case strings.HasPrefix(ct, "multipart/form-data"):
		return processMultipart(sw, h, rawCT, maxBytes)
	case h.IsChunked():
		return processChunked(sw, maxBytes)
	case h.ContentLength() > 0:
		return processRaw(sw, h.ContentLength(), maxBytes)
	default:
		return Empty(), nil
	}
}

func processRaw(sw socket.Wrapper, length int64, maxBytes int64) (Body, error) {
	if maxBytes > 0 && length > maxBytes {
		return Body{}, ErrBodyTooLarge
	}
	raw, err := sw.ReadExact(int(length))
	if err != nil {
		return Body{}, fmt.Errorf("reading raw body: %w", err)
	}
	return Body{Raw: raw}, nil
}

func processURLEncoded(sw socket.Wrapper, h *headers.Headers, maxBytes int64) (Body, error) {
	length := h.ContentLength()
	if maxBytes > 0 && length > maxBytes {
		return Body{}, ErrBodyTooLarge
	}
	raw, err := sw.ReadExact(int(length))
	if err != nil {
		return Body{}, fmt.Errorf("reading urlencoded body: %w", err)
	}

	form, err := parseURLEncoded(raw)
	if err != nil {
		return Body{}, fmt.Errorf("parsing urlencoded body: %w", err)
	}
	return Body{Raw: raw, Form: form}, nil
}

func parseURLEncoded(raw []byte) (map[string]string, error) {
	form := make(map[string]string)
	if len(raw) == 0 {
		return form, nil
	}
	for _, pair := range strings.Split(string(raw), "&") {
		if pair == "" {
			continue
		}
		var k, v string
		if idx := strings.IndexByte(pair, '='); idx == -1 {
			k = pair
		} else {
			k = pair[:idx]
			v = pair[idx+1:]
		}
		dk, err := startline.PercentDecode(k)
		if err != nil {
			return nil, fmt.Errorf("malformed form key %q: %w", k, err)
		}
		dv, err := startline.PercentDecode(v)
		if err != nil {
			return nil, fmt.Errorf("malformed form value %q: %w", v, err)
		}
		form[dk] = dv
	}
	return form, nil
}

// processChunked reassembles a Transfer-Encoding: chunked body by reading
// hex-length lines followed by that many bytes and a trailing CRLF, until a
// zero-length chunk terminates the sequence. Trailing headers after the
// final chunk are read and discarded.
func processChunked(sw socket.Wrapper, maxBytes int64) (Body, error) {
	var out []byte
	var total int64

	for {
		sizeLine, err := sw.ReadLine(64)
		if err != nil {
			return Body{}, fmt.Errorf("reading chunk size: %w", err)
		}
		if sizeLine == nil {
			return Body{}, fmt.Errorf("reading chunk size: connection closed")
		}

		sizeTok := sizeLine
		if idx := bytes.IndexByte(sizeLine, ';'); idx != -1 {
			sizeTok = sizeLine[:idx]
		}
		size, err := strconv.ParseInt(strings.TrimSpace(string(sizeTok)), 16, 64)
		if err != nil {
			return Body{}, fmt.Errorf("malformed chunk size %q: %w", sizeLine, err)
		}

		if size == 0 {
			if err := drainTrailer(sw); err != nil {
				return Body{}, err
			}
			return Body{Raw: out}, nil
		}

		total += size
		if maxBytes > 0 && total > maxBytes {
			return Body{}, ErrBodyTooLarge
		}

		chunk, err := sw.ReadExact(int(size))
		if err != nil {
			return Body{}, fmt.Errorf("reading chunk body: %w", err)
		}
		out = append(out, chunk...)

		if _, err := sw.ReadLine(2); err != nil {
			return Body{}, fmt.Errorf("reading chunk trailing CRLF: %w", err)
		}
	}
}

// drainTrailer reads and discards any trailer headers following the
// terminating zero-length chunk, up to the blank line that ends them.
func drainTrailer(sw socket.Wrapper) error {
	for {
		line, err := sw.ReadLine(headers.DefaultMaxLines)
		if err != nil {
			return fmt.Errorf("reading chunk trailer: %w", err)
		}
		if len(line) == 0 {
			return nil
		}
	}
}

// processMultipart parses a multipart/form-data body into named Parts. It
// reads the whole Content-Length body into memory first, then splits it
// into boundary-delimited sections in order. ct must be the
// case-preserved Content-Type value: the boundary token is case-sensitive
// per RFC 2046, so a lowercased Content-Type would never match the
// case-preserved "--boundary" delimiters actually read off the wire.
func processMultipart(sw socket.Wrapper, h *headers.Headers, ct string, maxBytes int64) (Body, error) {
	boundary, err := multipartBoundary(ct)
	if err != nil {
		return Body{}, err
	}
	length := h.ContentLength()
	if maxBytes > 0 && length > maxBytes {
		return Body{}, ErrBodyTooLarge
	}

	raw, err := sw.ReadExact(int(length))
	if err != nil {
		return Body{}, fmt.Errorf("reading multipart body: %w", err)
	}

	parts, err := splitMultipart(raw, boundary)
	if err != nil {
		return Body{}, err
	}
	return Body{Raw: raw, Parts: parts}, nil
}

// multipartBoundary finds the boundary parameter's value, matching the
// "boundary=" marker case-insensitively (it's a parameter name) but
// returning the value exactly as received (it's a token compared
// byte-for-byte against the delimiters on the wire).
func multipartBoundary(ct string) (string, error) {
	const marker = "boundary="
	idx := strings.Index(strings.ToLower(ct), marker)
	if idx == -1 {
		return "", fmt.Errorf("multipart content-type missing boundary: %q", ct)
	}
	b := ct[idx+len(marker):]
	if semi := strings.IndexByte(b, ';'); semi != -1 {
		b = b[:semi]
	}
	b = strings.Trim(b, `"`)
	if b == "" {
		return "", fmt.Errorf("multipart content-type has empty boundary: %q", ct)
	}
	return b, nil
}

// splitMultipart scans raw for "--boundary" delimiters, parsing the
// per-part header block and body between each pair, and stops at the
// closing "--boundary--" delimiter.
func splitMultipart(raw []byte, boundary string) (map[string]Part, error) {
	delim := []byte("--" + boundary)
	parts := make(map[string]Part)

	sections := bytes.Split(raw, delim)
	for i, section := range sections {
		if i == 0 {
			continue // preamble before the first delimiter
		}
		if bytes.HasPrefix(section, []byte("--")) {
			break // closing delimiter "--boundary--"
		}
		section = bytes.TrimPrefix(section, []byte("\r\n"))
		section = bytes.TrimSuffix(section, []byte("\r\n"))
		if len(section) == 0 {
			continue
		}

		sep := []byte("\r\n\r\n")
		idx := bytes.Index(section, sep)
		if idx == -1 {
			continue
		}

		partHeaders := headers.NewHeaders()
		if _, _, err := partHeaders.Parse(append(section[:idx], []byte("\r\n\r\n")...)); err != nil {
			return nil, fmt.Errorf("parsing multipart part headers: %w", err)
		}
		partBody := section[idx+len(sep):]

		name, filename := parseContentDisposition(partHeaders)
		if name == "" {
			continue
		}
		parts[name] = Part{
			Headers:  partHeaders,
			Name:     name,
			Filename: filename,
			Body:     partBody,
		}
	}

	return parts, nil
}

// parseContentDisposition extracts name and filename from a part's
// Content-Disposition header, e.g. `form-data; name="field"; filename="f.txt"`.
func parseContentDisposition(h *headers.Headers) (name, filename string) {
	cd, ok := h.Get("content-disposition")
	if !ok {
		return "", ""
	}
	for _, seg := range strings.Split(cd, ";") {
		seg = strings.TrimSpace(seg)
		switch {
		case strings.HasPrefix(seg, "name="):
			name = strings.Trim(seg[len("name="):], `"`)
		case strings.HasPrefix(seg, "filename="):
			filename = strings.Trim(seg[len("filename="):], `"`)
		}
	}
	return name, filename
}
