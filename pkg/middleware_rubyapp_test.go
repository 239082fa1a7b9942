package pkg

import (
	"net/http"
	"testing"
)

func TestRubyAppInvokesHandlerAndStops(t *testing.T) {
	called := false
	layer := NewRubyApp(func(ctx Context) error {
		called = true
		ctx.Response().WriteHeader(http.StatusOK)
		ctx.Response().Write([]byte("ok"))
		return nil
	})

	ctx := newTestContext(http.MethodGet, "/widgets", nil)
	done, err := layer.Before(ctx)
	if !done || err != nil {
		t.Fatalf("unexpected done=%v err=%v", done, err)
	}
	if !called {
		t.Fatal("expected handler to be invoked")
	}
}

func TestRubyAppPropagatesHandlerError(t *testing.T) {
	want := NewCoreError(KindAppException, "boom")
	layer := NewRubyApp(func(ctx Context) error { return want })

	ctx := newTestContext(http.MethodGet, "/widgets", nil)
	done, err := layer.Before(ctx)
	if !done {
		t.Fatal("expected the terminal layer to always stop the chain")
	}
	if err != want {
		t.Fatalf("expected handler error to propagate, got %v", err)
	}
}
