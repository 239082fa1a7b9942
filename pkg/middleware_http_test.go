package pkg

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"testing"
)

// newTestContext builds a real contextImpl/bufferedResponseWriter pair, the
// same construction NewContext uses in production, so middleware tests
// exercise real Set/Get scratch storage and a real buffered response instead
// of the no-op mockContext used by the manager tests.
func newTestContext(method, rawPath string, header http.Header) Context {
	if header == nil {
		header = make(http.Header)
	}
	u, _ := url.Parse(rawPath)
	req := &Request{
		Method: method,
		URL:    u,
		Header: header,
		Query:  make(map[string]string),
		Params: make(map[string]string),
	}
	return NewContext(req, newBufferedResponseWriter(), context.Background())
}

func TestRequestHeadersAddRemove(t *testing.T) {
	h := make(http.Header)
	h.Set("X-Drop-Me", "x")
	ctx := newTestContext(http.MethodGet, "/", h)

	layer := NewRequestHeaders(map[string]string{"X-Added": "1"}, []string{"X-Drop-Me"})
	done, err := layer.Before(ctx)
	if done || err != nil {
		t.Fatalf("unexpected done=%v err=%v", done, err)
	}
	if ctx.Request().Header.Get("X-Drop-Me") != "" {
		t.Error("X-Drop-Me should have been removed")
	}
	if ctx.Request().Header.Get("X-Added") != "1" {
		t.Error("X-Added should have been set")
	}
}

func TestResponseHeadersAfter(t *testing.T) {
	ctx := newTestContext(http.MethodGet, "/", nil)
	ctx.Response().Header().Set("X-Drop-Me", "x")

	layer := NewResponseHeaders(map[string]string{"X-Added": "1"}, []string{"X-Drop-Me"})
	if err := layer.After(ctx); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ctx.Response().Header().Get("X-Drop-Me") != "" {
		t.Error("X-Drop-Me should have been removed")
	}
	if ctx.Response().Header().Get("X-Added") != "1" {
		t.Error("X-Added should have been set")
	}
}

func TestCacheControlOnlySetsIfAbsent(t *testing.T) {
	ctx := newTestContext(http.MethodGet, "/", nil)
	layer := NewCacheControl("no-cache")
	if err := layer.After(ctx); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := ctx.Response().Header().Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("expected no-cache, got %q", got)
	}

	ctx2 := newTestContext(http.MethodGet, "/", nil)
	ctx2.Response().Header().Set("Cache-Control", "max-age=60")
	if err := layer.After(ctx2); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := ctx2.Response().Header().Get("Cache-Control"); got != "max-age=60" {
		t.Fatalf("handler-set Cache-Control should win, got %q", got)
	}
}

func TestMaxBodyRejectsOversized(t *testing.T) {
	ctx := newTestContext(http.MethodPost, "/", nil)
	ctx.Request().RawBody = make([]byte, 100)

	layer := NewMaxBody(50)
	done, err := layer.Before(ctx)
	if !done || err == nil {
		t.Fatalf("expected rejection, got done=%v err=%v", done, err)
	}
	fe, ok := GetFrameworkError(err)
	if !ok || fe.Code != ErrCodePayloadTooLarge {
		t.Fatalf("expected ErrCodePayloadTooLarge, got %v", err)
	}

	ctx2 := newTestContext(http.MethodPost, "/", nil)
	ctx2.Request().RawBody = make([]byte, 10)
	done, err = layer.Before(ctx2)
	if done || err != nil {
		t.Fatalf("expected pass-through, got done=%v err=%v", done, err)
	}
}

func TestRedirectSubstitutesBackreferences(t *testing.T) {
	ctx := newTestContext(http.MethodGet, "/old/widgets", nil)
	layer := NewRedirect(regexp.MustCompile(`^/old/(.*)$`), "/new/$1", http.StatusMovedPermanently)

	done, err := layer.Before(ctx)
	if !done || err != nil {
		t.Fatalf("unexpected done=%v err=%v", done, err)
	}
	if got := ctx.Response().Header().Get("Location"); got != "/new/widgets" {
		t.Fatalf("expected /new/widgets, got %q", got)
	}
	if ctx.Response().Status() != http.StatusMovedPermanently {
		t.Fatalf("expected 301, got %d", ctx.Response().Status())
	}
}

func TestRedirectNoOpWhenTargetEmpty(t *testing.T) {
	ctx := newTestContext(http.MethodGet, "/keep", nil)
	layer := NewRedirect(regexp.MustCompile(`^/keep$`), "", http.StatusFound)
	done, err := layer.Before(ctx)
	if done || err != nil {
		t.Fatalf("expected pass-through, got done=%v err=%v", done, err)
	}
}

func TestCorsPreflightAllowed(t *testing.T) {
	h := make(http.Header)
	h.Set("Origin", "https://example.com")
	h.Set("Access-Control-Request-Method", "POST")
	ctx := newTestContext(http.MethodOptions, "/api", h)

	layer := NewCors([]StringMatch{NewExactMatch("https://example.com")}, []string{"POST", "GET"}, []string{"X-Custom"}, true, 600)
	done, err := layer.Before(ctx)
	if !done || err != nil {
		t.Fatalf("unexpected done=%v err=%v", done, err)
	}
	resp := ctx.Response()
	if resp.Status() != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Status())
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Fatalf("expected origin echoed, got %q", got)
	}
	if resp.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("expected credentials header")
	}
}

func TestCorsPreflightRejectedOrigin(t *testing.T) {
	h := make(http.Header)
	h.Set("Origin", "https://evil.example")
	h.Set("Access-Control-Request-Method", "POST")
	ctx := newTestContext(http.MethodOptions, "/api", h)

	layer := NewCors([]StringMatch{NewExactMatch("https://example.com")}, []string{"POST"}, nil, false, 0)
	done, _ := layer.Before(ctx)
	if !done {
		t.Fatal("expected preflight to short-circuit")
	}
	if ctx.Response().Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("rejected origin must not be echoed")
	}
}

func TestCorsNormalRequestTagsContextForAfter(t *testing.T) {
	h := make(http.Header)
	h.Set("Origin", "https://example.com")
	ctx := newTestContext(http.MethodGet, "/api", h)

	layer := NewCors([]StringMatch{NewExactMatch("https://example.com")}, nil, nil, false, 0)
	done, err := layer.Before(ctx)
	if done || err != nil {
		t.Fatalf("normal request must not short-circuit: done=%v err=%v", done, err)
	}
	if err := layer.After(ctx); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := ctx.Response().Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Fatalf("expected origin echoed in After, got %q", got)
	}
}
