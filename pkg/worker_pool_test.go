package pkg

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestPool(t *testing.T, workers int, httpHandler func(ctx Context) error) *WorkerPool {
	t.Helper()
	if httpHandler == nil {
		httpHandler = func(ctx Context) error { return nil }
	}
	pool := NewWorkerPool(workers, 0, httpHandler, func(service GRPCService, method string, req interface{}) (interface{}, error) {
		ext, ok := service.(GRPCServiceExtended)
		if !ok {
			return nil, NewCoreError(KindAppException, "service does not implement unary dispatch")
		}
		return ext.HandleUnary(context.Background(), method, req)
	})
	if err := pool.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return pool
}

func TestWorkerPoolDispatchRunsHandler(t *testing.T) {
	var calls atomic.Int64
	pool := newTestPool(t, 2, func(ctx Context) error {
		calls.Add(1)
		return nil
	})
	defer pool.Shutdown(time.Second)

	if err := pool.Dispatch(newTestContext(http.MethodGet, "/", nil)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 handler call, got %d", calls.Load())
	}
}

func TestWorkerPoolDispatchPropagatesHandlerError(t *testing.T) {
	want := NewCoreError(KindAppException, "handler blew up")
	pool := newTestPool(t, 1, func(ctx Context) error { return want })
	defer pool.Shutdown(time.Second)

	err := pool.Dispatch(newTestContext(http.MethodGet, "/", nil))
	fe, ok := GetFrameworkError(err)
	if !ok || fe.Code != ErrCodeAppException {
		t.Fatalf("expected APP_EXCEPTION, got %v", err)
	}
}

func TestWorkerPoolConcurrentDispatch(t *testing.T) {
	var calls atomic.Int64
	pool := newTestPool(t, 4, func(ctx Context) error {
		calls.Add(1)
		return nil
	})
	defer pool.Shutdown(time.Second)

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pool.Dispatch(newTestContext(http.MethodGet, "/", nil)); err != nil {
				t.Errorf("Dispatch: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != n {
		t.Fatalf("expected %d handler calls, got %d", n, calls.Load())
	}
}

// unaryEcho is a minimal GRPCServiceExtended that echoes its request back.
type unaryEcho struct{}

func (unaryEcho) ServiceName() string { return "test.Echo" }
func (unaryEcho) Methods() []string   { return []string{"Echo"} }
func (unaryEcho) HandleUnary(_ context.Context, method string, req interface{}) (interface{}, error) {
	return fmt.Sprintf("echo:%v", req), nil
}

func TestWorkerPoolDispatchGRPC(t *testing.T) {
	pool := newTestPool(t, 1, nil)
	defer pool.Shutdown(time.Second)

	svc := &unaryEcho{}
	out, err := pool.DispatchGRPC(svc, "Echo", "ping")
	if err != nil {
		t.Fatalf("DispatchGRPC: %v", err)
	}
	if out != "echo:ping" {
		t.Fatalf("expected echo:ping, got %v", out)
	}
}

func TestWorkerPoolShutdownDrainsWorkers(t *testing.T) {
	pool := newTestPool(t, 3, nil)

	done := make(chan struct{})
	go func() {
		pool.Shutdown(2 * time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Shutdown did not complete")
	}
}

func TestWorkerPoolResize(t *testing.T) {
	pool := newTestPool(t, 1, nil)
	defer pool.Shutdown(time.Second)

	if got := pool.ActiveWorkers(); got != 1 {
		t.Fatalf("expected 1 worker, got %d", got)
	}
	if err := pool.AddWorker(); err != nil {
		t.Fatalf("AddWorker: %v", err)
	}
	if got := pool.ActiveWorkers(); got != 2 {
		t.Fatalf("expected 2 workers after AddWorker, got %d", got)
	}
	pool.RemoveWorker()
	if got := pool.ActiveWorkers(); got != 1 {
		t.Fatalf("expected 1 worker after RemoveWorker, got %d", got)
	}
	pool.RemoveWorker() // floor: never below one worker
	if got := pool.ActiveWorkers(); got != 1 {
		t.Fatalf("expected RemoveWorker to refuse going below 1, got %d", got)
	}
}

// A batch larger than fiberBatchSize still completes: the worker drains in
// successive batches rather than dropping overflow.
func TestWorkerPoolBatchOverflow(t *testing.T) {
	var calls atomic.Int64
	pool := newTestPool(t, 1, func(ctx Context) error {
		calls.Add(1)
		return nil
	})
	defer pool.Shutdown(time.Second)

	total := fiberBatchSize*2 + 3
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Dispatch(newTestContext(http.MethodGet, "/", nil))
		}()
	}
	wg.Wait()

	if int(calls.Load()) != total {
		t.Fatalf("expected %d calls, got %d", total, calls.Load())
	}
}
