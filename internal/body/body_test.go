package body

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minumserver/minum/internal/headers"
	"github.com/minumserver/minum/internal/socket"
)

func newWrapper(t *testing.T, raw string) socket.Wrapper {
	t.Helper()
	var out bytes.Buffer
	return socket.NewPipe(bytes.NewReader([]byte(raw)), &out, "127.0.0.1:0")
}

func headersFrom(t *testing.T, lines string) *headers.Headers {
	t.Helper()
	h := headers.NewHeaders()
	_, done, err := h.Parse([]byte(lines))
	require.NoError(t, err)
	require.True(t, done)
	return h
}

func TestProcessNoBody(t *testing.T) {
	h := headersFrom(t, "\r\n")
	sw := newWrapper(t, "")
	b, err := Process(sw, h, 0)
	require.NoError(t, err)
	assert.Equal(t, Empty(), b)
}

func TestProcessRawContentLength(t *testing.T) {
	h := headersFrom(t, "Content-Length: 5\r\n\r\n")
	sw := newWrapper(t, "hello")
	b, err := Process(sw, h, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b.Raw)
	assert.Nil(t, b.Form)
}

func TestProcessRawTooLarge(t *testing.T) {
	h := headersFrom(t, "Content-Length: 5\r\n\r\n")
	sw := newWrapper(t, "hello")
	_, err := Process(sw, h, 4)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestProcessURLEncoded(t *testing.T) {
	payload := "name=Ken+Thompson&lang=Go"
	h := headersFrom(t, "Content-Type: application/x-www-form-urlencoded\r\nContent-Length: "+strconv.Itoa(len(payload))+"\r\n\r\n")
	sw := newWrapper(t, payload)
	b, err := Process(sw, h, 0)
	require.NoError(t, err)
	assert.Equal(t, "Ken Thompson", b.Form["name"])
	assert.Equal(t, "Go", b.Form["lang"])
}

func TestProcessChunked(t *testing.T) {
	raw := "5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	h := headersFrom(t, "Transfer-Encoding: chunked\r\n\r\n")
	sw := newWrapper(t, raw)
	b, err := Process(sw, h, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), b.Raw)
}

func TestProcessChunkedTooLarge(t *testing.T) {
	raw := "5\r\nhello\r\n0\r\n\r\n"
	h := headersFrom(t, "Transfer-Encoding: chunked\r\n\r\n")
	sw := newWrapper(t, raw)
	_, err := Process(sw, h, 3)
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestProcessMultipart(t *testing.T) {
	boundary := "XYZ"
	body := "--" + boundary + "\r\n" +
		"Content-Disposition: form-data; name=\"field1\"\r\n\r\n" +
		"value1\r\n" +
		"--" + boundary + "\r\n" +
		"Content-Disposition: form-data; name=\"file1\"; filename=\"a.txt\"\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"file contents\r\n" +
		"--" + boundary + "--\r\n"

	h := headersFrom(t, "Content-Type: multipart/form-data; boundary="+boundary+"\r\nContent-Length: "+strconv.Itoa(len(body))+"\r\n\r\n")
	sw := newWrapper(t, body)
	b, err := Process(sw, h, 0)
	require.NoError(t, err)
	require.Contains(t, b.Parts, "field1")
	assert.Equal(t, []byte("value1"), b.Parts["field1"].Body)

	require.Contains(t, b.Parts, "file1")
	assert.Equal(t, "a.txt", b.Parts["file1"].Filename)
	assert.Equal(t, []byte("file contents"), b.Parts["file1"].Body)
}
