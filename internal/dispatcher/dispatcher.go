// Package dispatcher implements the per-connection HTTP/1.1 loop: read a
// start line, read headers, conditionally read a body, look up a
// handler or static asset, invoke it, and write the response — looping
// for another request while keep-alive holds, closing otherwise.
package dispatcher

import (
	"fmt"
	"strconv"
	"time"

	"github.com/minumserver/minum/internal/body"
	"github.com/minumserver/minum/internal/config"
	"github.com/minumserver/minum/internal/headers"
	"github.com/minumserver/minum/internal/httprequest"
	"github.com/minumserver/minum/internal/logging"
	"github.com/minumserver/minum/internal/metrics"
	"github.com/minumserver/minum/internal/registry"
	"github.com/minumserver/minum/internal/response"
	"github.com/minumserver/minum/internal/security"
	"github.com/minumserver/minum/internal/socket"
	"github.com/minumserver/minum/internal/staticfiles"
	"github.com/minumserver/minum/internal/startline"
)

// Dispatcher holds every shared, read-mostly collaborator the
// connection loop consults. One Dispatcher is shared by every
// connection the Server accepts.
type Dispatcher struct {
	Registry      *registry.Registry
	Static        *staticfiles.Cache
	Brig          *security.Brig
	Investigation *security.UnderInvestigation
	Logger        logging.Logger
	Metrics       *metrics.Metrics
	Constants     config.Constants
}

// New builds a Dispatcher from its collaborators. A nil Logger or
// Metrics is replaced with a no-op implementation.
func New(reg *registry.Registry, static *staticfiles.Cache, brig *security.Brig, inv *security.UnderInvestigation, logger logging.Logger, m *metrics.Metrics, cfg config.Constants) *Dispatcher {
	if logger == nil {
		logger = logging.NullLogger{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &Dispatcher{
		Registry:      reg,
		Static:        static,
		Brig:          brig,
		Investigation: inv,
		Logger:        logger,
		Metrics:       m,
		Constants:     cfg,
	}
}

// Handle processes zero or more requests on sw, closing it before
// returning on every exit path.
func (d *Dispatcher) Handle(sw socket.Wrapper) {
	defer sw.Close()

	d.Metrics.ConnectionOpened()
	defer d.Metrics.ConnectionClosed()

	remoteAddr := sw.RemoteAddr()
	vulnKey := remoteAddr + "_vuln_seeking"

	if d.Brig.IsInJail(vulnKey) {
		return
	}

	for {
		keepAlive, err := d.serveOne(sw, remoteAddr, vulnKey)
		if err != nil {
			d.Logger.Debug("closing connection", logging.Field{Key: "remote_addr", Value: remoteAddr}, logging.Field{Key: "error", Value: err.Error()})
			return
		}
		if !keepAlive {
			return
		}
	}
}

// defaultMaxReadLineSizeBytes is the fallback line-length bound used when
// config doesn't set one, matching config's own default for
// MaxReadLineSizeBytes. headers.DefaultMaxLines is a line-count bound for
// a different concern (how many header lines Headers.Parse will accept)
// and must not be reused as a byte bound here.
const defaultMaxReadLineSizeBytes = 1024

// serveOne processes exactly one request/response exchange. It returns
// whether the connection should stay open for another iteration.
func (d *Dispatcher) serveOne(sw socket.Wrapper, remoteAddr, vulnKey string) (bool, error) {
	start := time.Now()

	maxLine := d.Constants.MaxReadLineSizeBytes
	if maxLine <= 0 {
		maxLine = defaultMaxReadLineSizeBytes // unreachable in practice; keeps a sane bound
	}

	line, err := sw.ReadLine(maxLine)
	if err != nil {
		if err == socket.ErrLineTooLong {
			d.Logger.Debug("client sent more bytes than allowed for a single line",
				logging.Field{Key: "max", Value: maxLine}, logging.Field{Key: "remote_addr", Value: remoteAddr})
			d.Brig.SendToJail(vulnKey, d.Constants.VulnSeekingJailTTL())
			return false, nil
		}
		return false, err
	}
	if line == nil {
		return false, nil // client closed its side
	}

	sl, err := startline.Parse(line)
	if err != nil {
		d.writeAndRecord(sw, response.Text(response.StatusBadRequest, err.Error()), false, start)
		return false, nil
	}
	if sl.Method == startline.UNRECOGNIZED {
		d.writeAndRecord(sw, response.New(response.StatusBadRequest, nil), false, start)
		return false, nil
	}

	h := headers.NewHeaders()
	if err := d.readHeaders(sw, h); err != nil {
		d.writeAndRecord(sw, response.Text(response.StatusBadRequest, err.Error()), false, start)
		return false, nil
	}

	keepAlive := decideKeepAlive(sl.Version, h)

	reqBody := body.Empty()
	if requestHasBody(h) {
		reqBody, err = body.Process(sw, h, d.Constants.MaxReadSizeBytes)
		if err != nil {
			if err == body.ErrBodyTooLarge {
				d.writeAndRecord(sw, response.New(response.StatusRequestEntityTooLarge, nil), false, start)
				return false, nil
			}
			d.writeAndRecord(sw, response.Text(response.StatusBadRequest, err.Error()), false, start)
			return false, nil
		}
	}

	handler, resp, ok := d.lookup(sl, remoteAddr)
	if !ok {
		d.writeAndRecord(sw, resp, keepAlive, start)
		return keepAlive, nil
	}

	req := httprequest.Request{
		StartLine:  sl,
		Headers:    h,
		Body:       reqBody,
		RemoteAddr: remoteAddr,
	}

	handlerResp := d.invokeHandler(handler, req)
	if sl.Method == startline.HEAD {
		// A HEAD response must carry the Content-Length the equivalent GET
		// would have sent, so fix it from the real body length before
		// discarding the body itself. Clone first: handlerResp.ExtraHeaders
		// may be the pointer stored in the shared static-asset cache.
		if handlerResp.ExtraHeaders == nil {
			handlerResp.ExtraHeaders = headers.NewHeaders()
		} else {
			handlerResp.ExtraHeaders = handlerResp.ExtraHeaders.Clone()
		}
		if _, ok := handlerResp.ExtraHeaders.Get("content-length"); !ok {
			handlerResp.ExtraHeaders.Set("Content-Length", strconv.Itoa(len(handlerResp.Body)))
		}
		handlerResp.Body = nil
	}

	d.writeAndRecord(sw, handlerResp, keepAlive, start)
	return keepAlive, nil
}

// readHeaders drains header lines off sw into h until the blank line
// terminator or a protocol error.
func (d *Dispatcher) readHeaders(sw socket.Wrapper, h *headers.Headers) error {
	for {
		line, err := sw.ReadLine(d.Constants.MaxReadLineSizeBytes)
		if err != nil {
			return err
		}
		if line == nil {
			return fmt.Errorf("connection closed while reading headers")
		}
		if len(line) == 0 {
			return nil
		}
		if _, _, err := h.Parse(append(line, '\r', '\n')); err != nil {
			return err
		}
	}
}

// lookup resolves a handler for the request, trying the registry then
// the static cache; on a full miss it synthesizes a 404 and may jail
// the client for probing a honeypot path.
func (d *Dispatcher) lookup(sl startline.StartLine, remoteAddr string) (registry.Handler, response.Response, bool) {
	path := sl.PathDetails.IsolatedPath

	if h, ok := d.Registry.Lookup(sl.Method, path); ok {
		return h, response.Response{}, true
	}

	if asset, ok := d.Static.Get(path); ok {
		return staticHandler(asset), response.Response{}, true
	}

	if d.Investigation != nil && d.Investigation.IsLookingForSuspiciousPaths(path) {
		d.Brig.SendToJail(remoteAddr+"_vuln_seeking", d.Constants.VulnSeekingJailTTL())
	}
	return nil, response.New(response.StatusNotFound, nil), false
}

func staticHandler(asset response.Response) registry.Handler {
	return func(httprequest.Request) response.Response {
		return asset
	}
}

// invokeHandler calls h, recovering from any panic and converting it to
// a 500, matching the boundary the rest of this codebase recovers
// handler panics at.
func (d *Dispatcher) invokeHandler(h registry.Handler, req httprequest.Request) (resp response.Response) {
	defer func() {
		if r := recover(); r != nil {
			d.Logger.Error("handler panic recovered",
				logging.Field{Key: "error", Value: fmt.Sprintf("%v", r)},
				logging.Field{Key: "path", Value: req.Path()},
			)
			resp = response.New(response.StatusInternalServerError, nil)
		}
	}()
	return h(req)
}

// writeAndRecord serializes resp to sw, adding the Date/Server headers
// and Keep-Alive advertisement, then records the request's outcome.
func (d *Dispatcher) writeAndRecord(sw socket.Wrapper, resp response.Response, keepAlive bool, start time.Time) {
	w := response.NewWriter(writerAdapter{sw})

	// resp.ExtraHeaders may be the pointer stored in a shared, pre-built
	// cache entry (a static asset hit, or a re-dispatched handler result);
	// it must never be mutated in place, so always inject connection
	// headers into a fresh copy.
	var h *headers.Headers
	if resp.ExtraHeaders != nil {
		h = resp.ExtraHeaders.Clone()
	} else {
		h = headers.NewHeaders()
	}
	h.Set("Date", time.Now().UTC().Format(time.RFC1123))
	h.Set("Server", "minum")
	if _, ok := h.Get("content-length"); !ok {
		h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}
	if keepAlive && d.Constants.KeepAliveTimeoutSeconds > 0 {
		h.Set("Keep-Alive", fmt.Sprintf("timeout=%d", d.Constants.KeepAliveTimeoutSeconds))
	}

	if err := w.WriteStatusLine(resp.StatusCode); err != nil {
		d.Logger.Debug("write status line failed", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	if err := w.WriteHeaders(h); err != nil {
		d.Logger.Debug("write headers failed", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	if err := w.WriteBody(resp.Body); err != nil {
		d.Logger.Debug("write body failed", logging.Field{Key: "error", Value: err.Error()})
		return
	}

	d.Metrics.RecordRequest(resp.StatusCode, time.Since(start))
	d.Logger.Trace("request handled",
		logging.Field{Key: "status", Value: int(resp.StatusCode)},
		logging.Field{Key: "status_text", Value: response.StatusText(resp.StatusCode)},
		logging.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
	)
}

// decideKeepAlive implements §4.1(f): HTTP/1.0 opts in via the
// keep-alive token, HTTP/1.1 opts out via the close token.
func decideKeepAlive(version startline.Version, h *headers.Headers) bool {
	if version == startline.OneDotZero {
		return h.HasKeepAlive()
	}
	return !h.HasConnectionClose()
}

// requestHasBody implements the resolved Open Question from §9: a body
// is present only when Content-Type is non-empty AND either
// Content-Length > 0 or the request is chunked.
func requestHasBody(h *headers.Headers) bool {
	if h.ContentType() == "" {
		return false
	}
	return h.ContentLength() > 0 || h.IsChunked()
}

// writerAdapter lets response.Writer, which wants an io.Writer, write
// through a socket.Wrapper.
type writerAdapter struct {
	sw socket.Wrapper
}

func (a writerAdapter) Write(p []byte) (int, error) {
	return a.sw.Write(p)
}
