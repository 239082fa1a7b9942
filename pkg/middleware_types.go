package pkg

import (
	"context"
	"regexp"
	"strings"
)

// MiddlewarePriority is the canonical ordering middleware layers are sorted into
// within a route's stack before execution, independent of the order they were
// declared in configuration. Before() runs in this order; After() runs in
// reverse, starting from whichever layer short-circuited the before-chain (or
// from the terminal layer if none did).
type MiddlewarePriority int

const (
	PriorityDenyList MiddlewarePriority = iota
	PriorityAllowList
	PriorityIntrusionProtection
	PriorityRedirect
	PriorityLogRequests
	PriorityCacheControl
	PriorityRequestHeaders
	PriorityResponseHeaders
	PriorityMaxBody
	PriorityAuthBasic
	PriorityAuthJwt
	PriorityAuthAPIKey
	PriorityRateLimit
	PriorityETag
	PriorityCompression
	PriorityProxy
	PriorityCors
	PriorityStaticAssets
	PriorityRubyApp
)

// MiddlewareLayer is one of the 18 concrete middleware kinds, plus the terminal
// application (RubyApp) layer that actually invokes the registered route
// handler. Layers are stateless across requests except for what they stash in
// Context; any layer-local state (rate limit counters, static asset cache) lives
// on the layer value itself, constructed once per route at config-load time.
type MiddlewareLayer interface {
	Priority() MiddlewarePriority

	// Initialize runs once, at server startup, before any request reaches the
	// layer — compiling templates, warming caches, validating config.
	Initialize(ctx context.Context) error

	// Before runs front-to-back in Priority order. If done is true the
	// before-chain stops here (the layer already wrote a response, e.g. a
	// DenyList rejection or a RubyApp dispatch) and After walks back starting
	// at this layer.
	Before(ctx Context) (done bool, err error)

	// After runs back-to-front starting from the layer that stopped Before (or
	// from the last layer if none stopped it), letting layers like
	// ResponseHeaders, ETag, and Compression observe/rewrite the response that
	// the terminal layer produced.
	After(ctx Context) error
}

// baseLayer supplies no-op Initialize/After so concrete layers only implement
// what they actually use.
type baseLayer struct{}

func (baseLayer) Initialize(context.Context) error { return nil }
func (baseLayer) After(Context) error              { return nil }

// StringMatch is a single attribute predicate: either an exact, case-insensitive
// match or a regexp (the config author supplies a Regexp value instead of a
// plain string to opt into wildcard matching), mirroring the original's
// StringMatch::Exact/Wildcard split.
type StringMatch struct {
	exact    string
	wildcard *regexp.Regexp
}

func NewExactMatch(s string) StringMatch              { return StringMatch{exact: s} }
func NewWildcardMatch(re *regexp.Regexp) StringMatch { return StringMatch{wildcard: re} }

func (m StringMatch) matches(value string) bool {
	if m.wildcard != nil {
		return m.wildcard.MatchString(value)
	}
	return strings.EqualFold(m.exact, value)
}
