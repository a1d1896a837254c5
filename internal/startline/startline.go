// Package startline parses the first line of an HTTP/1.1 request message:
// METHOD SP request-target SP HTTP/version CRLF.
package startline

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Method is a closed set of HTTP request methods. Anything outside the
// set decodes to UNRECOGNIZED, which the dispatcher treats as a 400.
type Method string

const (
	GET          Method = "GET"
	POST         Method = "POST"
	HEAD         Method = "HEAD"
	PUT          Method = "PUT"
	DELETE       Method = "DELETE"
	OPTIONS      Method = "OPTIONS"
	PATCH        Method = "PATCH"
	TRACE        Method = "TRACE"
	CONNECT      Method = "CONNECT"
	UNRECOGNIZED Method = "UNRECOGNIZED"
)

var knownMethods = map[string]Method{
	"GET": GET, "POST": POST, "HEAD": HEAD, "PUT": PUT, "DELETE": DELETE,
	"OPTIONS": OPTIONS, "PATCH": PATCH, "TRACE": TRACE, "CONNECT": CONNECT,
}

func parseMethod(s string) Method {
	if m, ok := knownMethods[strings.ToUpper(s)]; ok {
		return m
	}
	return UNRECOGNIZED
}

// Version is the HTTP version named on the start line.
type Version string

const (
	OneDotZero Version = "1.0"
	OneDotOne  Version = "1.1"
)

// PathDetails separates the request-target into its path and query
// components. IsolatedPath is the path with the query string removed,
// and RawPath holds that same path; both keep the original case for
// handlers. Registry.Lookup and
// staticfiles.Cache.Get lowercase the path they are given themselves.
type PathDetails struct {
	RawPath      string
	IsolatedPath string
	Query        map[string]string
}

// StartLine is the parsed first line of an HTTP request.
type StartLine struct {
	Method      Method
	PathDetails PathDetails
	Version     Version
}

var (
	// ErrMalformed covers a start line that cannot be split into three
	// space-separated tokens, or an empty method/path.
	ErrMalformed = errors.New("malformed start line")
	// ErrUnsupportedVersion covers any HTTP version other than 1.0/1.1.
	ErrUnsupportedVersion = errors.New("unsupported HTTP version")
)

// Parse decodes a single start line (without its trailing CRLF).
func Parse(line []byte) (StartLine, error) {
	parts := bytes.SplitN(line, []byte(" "), 3)
	if len(parts) != 3 {
		return StartLine{}, ErrMalformed
	}

	methodTok := string(parts[0])
	target := string(parts[1])
	versionTok := string(parts[2])

	if methodTok == "" || target == "" {
		return StartLine{}, ErrMalformed
	}

	version, err := parseVersion(versionTok)
	if err != nil {
		return StartLine{}, err
	}

	pd, err := parsePathDetails(target)
	if err != nil {
		return StartLine{}, err
	}

	return StartLine{
		Method:      parseMethod(methodTok),
		PathDetails: pd,
		Version:     version,
	}, nil
}

func parseVersion(tok string) (Version, error) {
	switch tok {
	case "HTTP/1.1":
		return OneDotOne, nil
	case "HTTP/1.0":
		return OneDotZero, nil
	default:
		return "", ErrUnsupportedVersion
	}
}

func parsePathDetails(target string) (PathDetails, error) {
	path := target
	rawQuery := ""
	if idx := strings.IndexByte(target, '?'); idx != -1 {
		path = target[:idx]
		rawQuery = target[idx+1:]
	}

	if path == "" {
		return PathDetails{}, ErrMalformed
	}

	query, err := parseQuery(rawQuery)
	if err != nil {
		return PathDetails{}, err
	}

	return PathDetails{
		RawPath:      path,
		IsolatedPath: path,
		Query:        query,
	}, nil
}

// parseQuery decodes "k=v&k=v" pairs, percent-decoding as UTF-8.
// Duplicate keys keep the last value, matching spec.md §4.2.
func parseQuery(raw string) (map[string]string, error) {
	out := make(map[string]string)
	if raw == "" {
		return out, nil
	}

	for _, pair := range strings.Split(raw, "&") {
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

		dk, err := PercentDecode(k)
		if err != nil {
			return nil, fmt.Errorf("malformed query key %q: %w", k, err)
		}
		dv, err := PercentDecode(v)
		if err != nil {
			return nil, fmt.Errorf("malformed query value %q: %w", v, err)
		}
		out[dk] = dv
	}

	return out, nil
}

// PercentDecode decodes a percent-encoded, UTF-8 string, treating '+' as a
// literal space the way application/x-www-form-urlencoded data does. It is
// the inverse of PercentEncode: PercentDecode(PercentEncode(s)) == s.
func PercentDecode(s string) (string, error) {
	var buf strings.Builder
	buf.Grow(len(s))

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '+':
			buf.WriteByte(' ')
		case '%':
			if i+2 >= len(s) {
				return "", fmt.Errorf("incomplete percent-escape at offset %d", i)
			}
			b, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return "", fmt.Errorf("invalid percent-escape %q: %w", s[i:i+3], err)
			}
			buf.WriteByte(byte(b))
			i += 2
		default:
			buf.WriteByte(s[i])
		}
	}

	return buf.String(), nil
}

// PercentEncode percent-encodes s for use in a query string, leaving
// unreserved characters untouched.
func PercentEncode(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))

	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z', b >= '0' && b <= '9',
			b == '-', b == '_', b == '.', b == '~':
			buf.WriteByte(b)
		case b == ' ':
			buf.WriteByte('+')
		default:
			fmt.Fprintf(&buf, "%%%02X", b)
		}
	}

	return buf.String()
}
