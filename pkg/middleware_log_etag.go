package pkg

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const startTimeKey = "itsi.log.start"

// LogRequests records the request's start instant in Before, then emits one
// formatted log line in After using a template with placeholders
// (request_id, method, path, status, response_time, header.<Name>) and string
// modifiers (strip_prefix:, strip_suffix:, replace:from,to). Any other
// placeholder name is looked up as a query parameter; the route regex's
// capture groups are not available as placeholders.
type LogRequests struct {
	baseLayer
	logger   Logger
	template string
}

func NewLogRequests(logger Logger, template string) *LogRequests {
	if template == "" {
		template = `${request_id} ${method} ${path} ${status} ${response_time}`
	}
	return &LogRequests{logger: logger, template: template}
}

func (l *LogRequests) Priority() MiddlewarePriority { return PriorityLogRequests }

func (l *LogRequests) Before(ctx Context) (bool, error) {
	ctx.Set(startTimeKey, time.Now())
	return false, nil
}

var logPlaceholderPattern = regexp.MustCompile(`\$\{([a-zA-Z0-9_.:,/\-]+)\}`)

func (l *LogRequests) After(ctx Context) error {
	req := ctx.Request()
	status := ctx.Response().Status()
	var elapsed time.Duration
	if start, ok := ctx.Get(startTimeKey); ok {
		elapsed = time.Since(start.(time.Time))
	}

	line := logPlaceholderPattern.ReplaceAllStringFunc(l.template, func(token string) string {
		name := token[2 : len(token)-1]
		return resolveLogPlaceholder(name, req, status, elapsed)
	})

	l.logger.Info(line)
	return nil
}

// resolveLogPlaceholder resolves one ${...} token, applying any
// colon-delimited modifier chain (strip_prefix:X, strip_suffix:X,
// replace:from,to) to the base field's value, matching the original's
// placeholder-with-modifiers grammar.
func resolveLogPlaceholder(name string, req *Request, status int, elapsed time.Duration) string {
	parts := strings.Split(name, ":")
	base := parts[0]

	var value string
	switch {
	case base == "request_id":
		value = req.ID
	case base == "method":
		value = req.Method
	case base == "path":
		value = req.URL.Path
	case base == "status":
		value = strconv.Itoa(status)
	case base == "response_time":
		value = elapsed.String()
	case strings.HasPrefix(base, "header."):
		value = req.Header.Get(strings.TrimPrefix(base, "header."))
	default:
		value = req.URL.Query().Get(base)
	}

	// Modifiers follow the base name as op:arg pairs.
	for i := 1; i+1 < len(parts); i += 2 {
		op, arg := parts[i], parts[i+1]
		switch op {
		case "strip_prefix":
			value = strings.TrimPrefix(value, arg)
		case "strip_suffix":
			value = strings.TrimSuffix(value, arg)
		case "replace":
			args := strings.SplitN(arg, ",", 2)
			if len(args) == 2 {
				value = strings.ReplaceAll(value, args[0], args[1])
			}
		}
	}
	return value
}

const ifNoneMatchKey = "itsi.etag.inm"

// ETag buffers a successful, cacheable response body, hashes it, and either
// attaches the resulting ETag header or (when it matches the client's
// If-None-Match) downgrades the response to 304, preserving the handful of
// headers the original names (Cache-Control, Date, ETag, Expires, Vary,
// Content-Location). This forfeits streaming, the open question §9 flags
// explicitly as an accepted tradeoff of this layer.
type ETag struct {
	baseLayer
	weak    bool
	useMD5  bool
	minSize int64
}

func NewETag(weak, useMD5 bool, minSize int64) *ETag {
	return &ETag{weak: weak, useMD5: useMD5, minSize: minSize}
}

func (e *ETag) Priority() MiddlewarePriority { return PriorityETag }

func (e *ETag) Before(ctx Context) (bool, error) {
	ctx.Set(ifNoneMatchKey, ctx.Request().Header.Get("If-None-Match"))
	return false, nil
}

func (e *ETag) After(ctx Context) error {
	resp := ctx.Response()
	buffered, ok := resp.(*bufferedResponseWriter)
	if !ok {
		return nil
	}
	status := buffered.Status()
	if status < 200 || status >= 300 {
		return nil
	}
	h := buffered.Header()
	if h.Get("ETag") != "" || strings.Contains(h.Get("Cache-Control"), "no-store") {
		return nil
	}
	body := buffered.Bytes()
	if int64(len(body)) < e.minSize {
		return nil
	}

	etag := e.hash(body)
	h.Set("ETag", etag)

	inm, _ := ctx.Get(ifNoneMatchKey)
	if requested, _ := inm.(string); requested != "" && etagMatches(requested, etag) {
		preserved := []string{"Cache-Control", "Date", "ETag", "Expires", "Vary", "Content-Location"}
		kept := make(http.Header)
		for _, k := range preserved {
			if v := h.Get(k); v != "" {
				kept.Set(k, v)
			}
		}
		for k := range h {
			if _, keep := kept[k]; !keep {
				h.Del(k)
			}
		}
		buffered.ReplaceBody(nil)
		buffered.status = http.StatusNotModified
	}
	return nil
}

func (e *ETag) hash(body []byte) string {
	var sum string
	if e.useMD5 {
		digest := md5.Sum(body)
		sum = base64.StdEncoding.EncodeToString(digest[:])
	} else {
		digest := sha256.Sum256(body)
		sum = base64.StdEncoding.EncodeToString(digest[:])
	}
	if e.weak {
		return `W/"` + sum + `"`
	}
	return `"` + sum + `"`
}

func etagMatches(requested, etag string) bool {
	for _, candidate := range strings.Split(requested, ",") {
		if strings.TrimSpace(candidate) == etag {
			return true
		}
	}
	return false
}
