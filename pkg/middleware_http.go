package pkg

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// RequestHeaders adds, removes, and overrides request headers before the rest
// of the stack sees the request, mirroring the original's request_headers
// layer. Remove runs first so a header can be removed and then re-added by Add
// in the same layer without surprising ordering.
type RequestHeaders struct {
	baseLayer
	add    map[string]string
	remove []string
}

func NewRequestHeaders(add map[string]string, remove []string) *RequestHeaders {
	return &RequestHeaders{add: add, remove: remove}
}

func (h *RequestHeaders) Priority() MiddlewarePriority { return PriorityRequestHeaders }

func (h *RequestHeaders) Before(ctx Context) (bool, error) {
	req := ctx.Request()
	for _, k := range h.remove {
		req.Header.Del(k)
	}
	for k, v := range h.add {
		req.Header.Set(k, v)
	}
	return false, nil
}

// ResponseHeaders is RequestHeaders' after-hook mirror: it mutates the
// response rather than the request, so it must run as an After-hook (it needs
// the handler to have already produced a response).
type ResponseHeaders struct {
	baseLayer
	add    map[string]string
	remove []string
}

func NewResponseHeaders(add map[string]string, remove []string) *ResponseHeaders {
	return &ResponseHeaders{add: add, remove: remove}
}

func (h *ResponseHeaders) Priority() MiddlewarePriority { return PriorityResponseHeaders }

func (h *ResponseHeaders) Before(Context) (bool, error) { return false, nil }

func (h *ResponseHeaders) After(ctx Context) error {
	resp := ctx.Response().Header()
	for _, k := range h.remove {
		resp.Del(k)
	}
	for k, v := range h.add {
		resp.Set(k, v)
	}
	return nil
}

// CacheControl sets a Cache-Control header on the response if one isn't
// already present, matching the original's "set if absent" behavior so an
// upstream handler's own Cache-Control always wins.
type CacheControl struct {
	baseLayer
	directive string
}

func NewCacheControl(directive string) *CacheControl {
	return &CacheControl{directive: directive}
}

func (c *CacheControl) Priority() MiddlewarePriority { return PriorityCacheControl }

func (c *CacheControl) Before(Context) (bool, error) { return false, nil }

func (c *CacheControl) After(ctx Context) error {
	h := ctx.Response().Header()
	if h.Get("Cache-Control") == "" {
		h.Set("Cache-Control", c.directive)
	}
	return nil
}

// MaxBody rejects requests whose body exceeds a configured byte cap with 413,
// the dedicated enforcement point called out in §4.8 (distinct from
// HTTPService's own hard cap, which exists regardless of whether this layer is
// configured on a route).
type MaxBody struct {
	baseLayer
	limit int64
}

func NewMaxBody(limit int64) *MaxBody { return &MaxBody{limit: limit} }

func (m *MaxBody) Priority() MiddlewarePriority { return PriorityMaxBody }

func (m *MaxBody) Before(ctx Context) (bool, error) {
	if m.limit > 0 && int64(len(ctx.Request().RawBody)) > m.limit {
		return true, NewCoreError(KindPayloadTooLarge, "request body exceeds configured limit")
	}
	return false, nil
}

// Redirect emits a 301/302/307/308 when the matched route's target template
// renders a non-empty URL, substituting the route regex's capture groups the
// way RequestContext carries them (§3's "compiled route's regex" slot).
type Redirect struct {
	baseLayer
	pattern *regexp.Regexp
	target  string // may contain $1, $2, ... backreferences
	status  int
}

func NewRedirect(pattern *regexp.Regexp, target string, status int) *Redirect {
	if status == 0 {
		status = http.StatusFound
	}
	return &Redirect{pattern: pattern, target: target, status: status}
}

func (r *Redirect) Priority() MiddlewarePriority { return PriorityRedirect }

func (r *Redirect) Before(ctx Context) (bool, error) {
	path := ctx.Request().URL.Path
	dest := r.target
	if r.pattern != nil {
		dest = r.pattern.ReplaceAllString(path, r.target)
	}
	if dest == "" {
		return false, nil
	}
	ctx.Response().Header().Set("Location", dest)
	ctx.Response().WriteHeader(r.status)
	return true, nil
}

// Cors validates CORS preflight requests and, on normal requests, records the
// origin in ctx so the After-hook can echo the computed headers (§4.8's Cors
// row: preflight is answered entirely in Before, normal requests only tag the
// context for After).
type Cors struct {
	baseLayer
	allowOrigins     []StringMatch
	allowMethods     []string
	allowHeaders     []string
	allowCredentials bool
	maxAge           int
}

const corsOriginKey = "itsi.cors.origin"

func NewCors(allowOrigins []StringMatch, allowMethods, allowHeaders []string, allowCredentials bool, maxAge int) *Cors {
	return &Cors{
		allowOrigins:     allowOrigins,
		allowMethods:     allowMethods,
		allowHeaders:     allowHeaders,
		allowCredentials: allowCredentials,
		maxAge:           maxAge,
	}
}

func (c *Cors) Priority() MiddlewarePriority { return PriorityCors }

func (c *Cors) originAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	if len(c.allowOrigins) == 0 {
		return true
	}
	return anyMatch(c.allowOrigins, origin)
}

func (c *Cors) Before(ctx Context) (bool, error) {
	req := ctx.Request()
	origin := req.Header.Get("Origin")

	if req.Method == http.MethodOptions && req.Header.Get("Access-Control-Request-Method") != "" {
		resp := ctx.Response()
		if !c.originAllowed(origin) || !c.methodAllowed(req.Header.Get("Access-Control-Request-Method")) || !c.headersAllowed(req.Header.Get("Access-Control-Request-Headers")) {
			resp.WriteHeader(http.StatusNoContent)
			return true, nil
		}
		c.writeOriginHeader(resp.Header(), origin)
		resp.Header().Set("Access-Control-Allow-Methods", strings.Join(c.allowMethods, ", "))
		resp.Header().Set("Access-Control-Allow-Headers", strings.Join(c.allowHeaders, ", "))
		if c.allowCredentials {
			resp.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if c.maxAge > 0 {
			resp.Header().Set("Access-Control-Max-Age", strconv.Itoa(c.maxAge))
		}
		resp.WriteHeader(http.StatusNoContent)
		return true, nil
	}

	if origin != "" && c.originAllowed(origin) {
		ctx.Set(corsOriginKey, origin)
	}
	return false, nil
}

func (c *Cors) methodAllowed(method string) bool {
	if len(c.allowMethods) == 0 {
		return true
	}
	for _, m := range c.allowMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func (c *Cors) headersAllowed(requested string) bool {
	if requested == "" || len(c.allowHeaders) == 0 {
		return true
	}
	for _, h := range strings.Split(requested, ",") {
		h = strings.TrimSpace(h)
		ok := false
		for _, allowed := range c.allowHeaders {
			if strings.EqualFold(allowed, h) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func (c *Cors) writeOriginHeader(h http.Header, origin string) {
	if c.allowCredentials {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Vary", "Origin")
		return
	}
	if len(c.allowOrigins) == 0 {
		h.Set("Access-Control-Allow-Origin", "*")
		return
	}
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Vary", "Origin")
}

func (c *Cors) After(ctx Context) error {
	origin, ok := ctx.Get(corsOriginKey)
	if !ok {
		return nil
	}
	c.writeOriginHeader(ctx.Response().Header(), origin.(string))
	return nil
}
