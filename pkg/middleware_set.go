package pkg

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// MiddlewareStack is the compiled middleware chain for one route entry: a
// priority-sorted list of layers plus the attribute predicates (method,
// protocol, host, port, extension, content-type, accept) that must all pass for
// a request whose path already matched this route's pattern to actually use it.
type MiddlewareStack struct {
	layers       []MiddlewareLayer
	methods      []StringMatch
	protocols    []StringMatch
	hosts        []StringMatch
	extensions   []StringMatch
	ports        []StringMatch
	contentTypes []StringMatch
	accepts      []StringMatch
}

// Matches reports whether every non-empty predicate on the stack accepts this
// request, grounded on the original's MiddlewareStack::matches: each predicate
// is only enforced when both the stack declares it AND the request carries the
// corresponding attribute (e.g. a missing Content-Type header never fails a
// content_types predicate).
func (s *MiddlewareStack) Matches(ctx Context) bool {
	req := ctx.Request()

	if len(s.methods) > 0 && !anyMatch(s.methods, req.Method) {
		return false
	}
	if len(s.protocols) > 0 && req.Protocol != "" && !anyMatch(s.protocols, req.Protocol) {
		return false
	}
	if len(s.hosts) > 0 && req.Host != "" && !anyMatch(s.hosts, req.Host) {
		return false
	}
	if len(s.ports) > 0 {
		if port := portOf(req.Host); port != "" && !anyMatch(s.ports, port) {
			return false
		}
	}
	if len(s.extensions) > 0 {
		if !anyMatch(s.extensions, extensionOf(req.URL.Path)) {
			return false
		}
	}
	if len(s.contentTypes) > 0 {
		if ct := req.Header.Get("Content-Type"); ct != "" && !anyMatch(s.contentTypes, ct) {
			return false
		}
	}
	if len(s.accepts) > 0 {
		if accept := req.Header.Get("Accept"); accept != "" && !anyMatch(s.accepts, accept) {
			return false
		}
	}
	return true
}

func anyMatch(matches []StringMatch, value string) bool {
	for _, m := range matches {
		if m.matches(value) {
			return true
		}
	}
	return false
}

// extensionOf mirrors the original's computation: the text after the last dot
// of the last path segment, or "" if the segment has no dot (so "/users" and
// "/users.json" are distinguishable; "/.hidden" has extension "hidden").
func extensionOf(path string) string {
	segment := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		segment = path[i+1:]
	}
	dot := strings.LastIndexByte(segment, '.')
	if dot < 0 {
		return ""
	}
	return segment[dot+1:]
}

func portOf(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		return host[i+1:]
	}
	return ""
}

// RouteEntry is one configured route: the URI regex it matches against plus the
// compiled stack behind it.
type RouteEntry struct {
	Pattern string
	Stack   *MiddlewareStack
}

// MiddlewareSet is the compiled route table: an ordered set of URI-path regexes
// with one MiddlewareStack apiece. StackFor walks the patterns in declared
// order, evaluating the stack's attribute predicates only for a path that
// already matched, and returns the first full match — first-match-wins,
// deterministic (§4.6).
//
// The original used regex::RegexSet to batch-test all patterns against the path
// in one pass. Go's stdlib regexp has no multi-pattern-set primitive with that
// shape, and nothing in the example pack provides one either, so StackFor just
// iterates the compiled []*regexp.Regexp in declared order — same observable
// result (first declared route whose pattern and predicates both match wins),
// at the cost of not batching the regex engine's internal work.
type MiddlewareSet struct {
	routes   []RouteEntry
	patterns []*regexp.Regexp
}

// NewMiddlewareSet compiles each route's URI pattern and sorts its layers into
// canonical Priority order (§4.8's table order), matching the original's
// `layers.sort()` after parsing each route's middleware array.
func NewMiddlewareSet(routes []RouteEntry) (*MiddlewareSet, error) {
	patterns := make([]*regexp.Regexp, 0, len(routes))
	for _, r := range routes {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("route pattern %q: %w", r.Pattern, err)
		}
		patterns = append(patterns, re)
		sort.SliceStable(r.Stack.layers, func(i, j int) bool {
			return r.Stack.layers[i].Priority() < r.Stack.layers[j].Priority()
		})
	}
	return &MiddlewareSet{routes: routes, patterns: patterns}, nil
}

// StackFor returns the layers and matched pattern for the first route whose
// regex matches the request path and whose predicates all pass.
func (ms *MiddlewareSet) StackFor(ctx Context) ([]MiddlewareLayer, string, error) {
	path := ctx.Request().URL.Path
	for i, re := range ms.patterns {
		if !re.MatchString(path) {
			continue
		}
		if ms.routes[i].Stack.Matches(ctx) {
			return ms.routes[i].Stack.layers, ms.routes[i].Pattern, nil
		}
	}
	return nil, "", NewCoreError(KindInvalidInput, fmt.Sprintf("no matching middleware stack for path %q", path)).WithStatus(404)
}

// InitializeLayers runs Initialize on every layer in every stack once, at
// startup (mirrors the original's MiddlewareSet::initialize_layers).
func (ms *MiddlewareSet) InitializeLayers(ctx Context) error {
	for _, r := range ms.routes {
		for _, layer := range r.Stack.layers {
			if err := layer.Initialize(ctx.Context()); err != nil {
				return fmt.Errorf("initialize %T for route %q: %w", layer, r.Pattern, err)
			}
		}
	}
	return nil
}
