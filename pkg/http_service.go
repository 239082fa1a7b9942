package pkg

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strings"
)

// bufferedResponseWriter captures a response entirely in memory so After-hooks
// (ETag, Compression, ResponseHeaders) can inspect and rewrite the body and
// headers before anything reaches the wire — the original's ETag layer is
// documented as whole-body-buffering too (§9 open question: acceptable).
type bufferedResponseWriter struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func newBufferedResponseWriter() *bufferedResponseWriter {
	return &bufferedResponseWriter{header: make(http.Header), status: http.StatusOK}
}

func (w *bufferedResponseWriter) Header() http.Header { return w.header }

func (w *bufferedResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(p)
}

func (w *bufferedResponseWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.status = statusCode
	w.wroteHeader = true
}

func (w *bufferedResponseWriter) WriteJSON(statusCode int, data interface{}) error {
	w.SetContentType("application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

func (w *bufferedResponseWriter) WriteXML(statusCode int, data interface{}) error {
	w.SetContentType("application/xml")
	w.WriteHeader(statusCode)
	return xml.NewEncoder(w).Encode(data)
}

func (w *bufferedResponseWriter) WriteString(statusCode int, message string) error {
	w.SetContentType("text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	_, err := w.Write([]byte(message))
	return err
}

func (w *bufferedResponseWriter) WriteStream(statusCode int, contentType string, reader io.Reader) error {
	w.SetContentType(contentType)
	w.WriteHeader(statusCode)
	_, err := io.Copy(w, reader)
	return err
}

func (w *bufferedResponseWriter) SetCookie(cookie *Cookie) error {
	if cookie == nil {
		return errors.New("cookie cannot be nil")
	}
	httpCookie := &http.Cookie{
		Name: cookie.Name, Value: cookie.Value, Path: cookie.Path, Domain: cookie.Domain,
		Expires: cookie.Expires, MaxAge: cookie.MaxAge, Secure: cookie.Secure,
		HttpOnly: cookie.HttpOnly, SameSite: cookie.SameSite,
	}
	w.header.Add("Set-Cookie", httpCookie.String())
	return nil
}

func (w *bufferedResponseWriter) SetHeader(key, value string)    { w.header.Set(key, value) }
func (w *bufferedResponseWriter) SetContentType(contentType string) { w.SetHeader("Content-Type", contentType) }
func (w *bufferedResponseWriter) Status() int                     { return w.status }
func (w *bufferedResponseWriter) Size() int64                     { return int64(w.body.Len()) }
func (w *bufferedResponseWriter) Written() bool                   { return w.wroteHeader }
func (w *bufferedResponseWriter) Flush() error                    { return nil }
func (w *bufferedResponseWriter) Close() error                    { return nil }

// Bytes returns the body captured so far — used by After-hooks that need to
// rehash or recompress the full response (ETag, Compression).
func (w *bufferedResponseWriter) Bytes() []byte { return w.body.Bytes() }

// ReplaceBody swaps the captured body wholesale, e.g. after gzip-compressing it.
func (w *bufferedResponseWriter) ReplaceBody(b []byte) {
	w.body.Reset()
	w.body.Write(b)
}

// flushTo writes the buffered status/headers/body to a real http.ResponseWriter.
func (w *bufferedResponseWriter) flushTo(rw http.ResponseWriter) {
	dst := rw.Header()
	for k, v := range w.header {
		dst[k] = v
	}
	if !w.wroteHeader {
		w.status = http.StatusOK
	}
	rw.WriteHeader(w.status)
	rw.Write(w.body.Bytes())
}

// negotiateFormat picks a response format keyword from the Accept header,
// defaulting to json — used by error responses when no handler ever set a
// Content-Type (§4.5 step 2).
func negotiateFormat(accept string) string {
	switch {
	case strings.Contains(accept, "application/xml"):
		return "xml"
	case strings.Contains(accept, "text/html"):
		return "html"
	case strings.Contains(accept, "text/plain"):
		return "text"
	default:
		return "json"
	}
}

// serveItsi is the HTTP service pipeline's net/http entrypoint: it builds a
// Context over a buffered response, dispatches it through the worker pool
// (which runs it on a scheduler fiber), enforces PipelineTimeout, then flushes
// the buffered response to the wire (§4.5).
func (s *httpServer) serveItsi(w http.ResponseWriter, r *http.Request) {
	s.activeConns.Add(1)
	defer s.activeConns.Done()

	select {
	case <-s.shutdownCtx.Done():
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	req, err := s.parseRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if s.config.MaxBodySize > 0 && int64(len(req.RawBody)) > s.config.MaxBodySize {
		fe := NewCoreError(KindPayloadTooLarge, "request body exceeds configured limit")
		http.Error(w, fe.Message, fe.StatusCode)
		return
	}

	// WebSocket upgrades bypass the worker-pool job queue entirely (§4.12):
	// the route's terminal handler hijacks the connection for its whole
	// lifetime, which would otherwise pin a worker/fiber slot indefinitely.
	// It still runs through the itsi before-chain (auth/CORS/rate-limit),
	// just over the live goroutine instead of a buffered writer, since
	// gorilla/websocket needs a real hijackable http.ResponseWriter.
	if isWebSocketUpgrade(r) {
		s.serveWebSocketItsi(w, r, req)
		return
	}

	buffered := newBufferedResponseWriter()
	ctx := s.createContext(req, buffered, r)

	pipelineCtx := r.Context()
	var cancel context.CancelFunc
	if s.config.PipelineTimeout > 0 {
		pipelineCtx, cancel = context.WithTimeout(r.Context(), s.config.PipelineTimeout)
		defer cancel()
	}
	if c, ok := ctx.(*contextImpl); ok {
		c.ctx = pipelineCtx
	}

	runErr := make(chan error, 1)
	go func() {
		if s.workerPool != nil {
			runErr <- s.workerPool.Dispatch(ctx)
		} else {
			runErr <- s.runPipeline(ctx)
		}
	}()

	select {
	case err := <-runErr:
		if err != nil {
			s.writeErrorResponse(buffered, ctx, err)
		}
		buffered.flushTo(w)
	case <-pipelineCtx.Done():
		fe := NewCoreError(KindTimeout, "request exceeded pipeline timeout")
		s.writeErrorResponse(buffered, ctx, fe)
		buffered.flushTo(w)
	}
}

// isWebSocketUpgrade reports whether the request carries the standard
// `Connection: Upgrade` / `Upgrade: websocket` handshake headers (RFC 6455).
func isWebSocketUpgrade(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, token := range strings.Split(r.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
			return true
		}
	}
	return false
}

// serveWebSocketItsi runs the itsi before-chain against a real (hijackable)
// response writer instead of the buffered one serveItsi normally uses, so
// the terminal RubyApp handler can perform the gorilla/websocket upgrade
// directly on the live connection (§4.12). Dispatched on the connection's
// own goroutine rather than through the worker pool.
func (s *httpServer) serveWebSocketItsi(w http.ResponseWriter, r *http.Request, req *Request) {
	respWriter := newResponseWriter(w)
	ctx := s.createContext(req, respWriter, r)

	if err := s.runPipeline(ctx); err != nil {
		if respWriter.Written() {
			// The connection was already hijacked by a successful upgrade
			// before a later After-hook failed; nothing left to write.
			return
		}
		s.writeErrorResponse(respWriter, ctx, err)
	}
}

func (s *httpServer) writeErrorResponse(buffered ResponseWriter, ctx Context, err error) {
	fe, ok := GetFrameworkError(err)
	status := http.StatusInternalServerError
	message := err.Error()
	if ok {
		status = fe.StatusCode
		message = fe.Message
		if status == 0 {
			status = http.StatusInternalServerError
		}
	}
	if s.errorHandler != nil {
		if handlerErr := s.errorHandler(ctx, err); handlerErr == nil {
			return
		}
	}
	switch negotiateFormat(ctx.Request().Header.Get("Accept")) {
	case "xml":
		buffered.WriteXML(status, map[string]string{"error": message})
	case "html":
		buffered.WriteString(status, "<html><body><h1>"+message+"</h1></body></html>")
	case "text":
		buffered.WriteString(status, message)
	default:
		buffered.WriteJSON(status, map[string]string{"error": message})
	}
}

// runPipeline implements the six-step request pipeline run on a worker/fiber
// (§4.5): resolve the middleware stack for this request, walk Before() in
// Priority order with short-circuit, then walk After() in reverse from
// whichever layer stopped it.
func (s *httpServer) runPipeline(ctx Context) error {
	if s.middlewareSet == nil {
		return s.executeHandler(ctx)
	}

	layers, _, err := s.middlewareSet.StackFor(ctx)
	if err != nil {
		return err
	}

	stopIndex := len(layers) - 1
	var beforeErr error
	for i, layer := range layers {
		select {
		case <-ctx.Context().Done():
			return ctx.Context().Err()
		default:
		}
		done, err := layer.Before(ctx)
		if err != nil {
			stopIndex = i
			beforeErr = err
			break
		}
		if done {
			stopIndex = i
			break
		}
	}

	for i := stopIndex; i >= 0; i-- {
		if err := layers[i].After(ctx); err != nil && beforeErr == nil {
			beforeErr = err
		}
	}
	return beforeErr
}
