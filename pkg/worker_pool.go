package pkg

import (
	"sync"
	"sync/atomic"
	"time"
)

// RequestJobKind tags a RequestJob's payload, mirroring the original's
// ProcessHttp/ProcessGrpc/Shutdown job variants (§4.7).
type RequestJobKind int

const (
	ProcessHttp RequestJobKind = iota
	ProcessGrpc
	JobShutdown
)

// RequestJob is one unit of work handed to the worker pool: either an HTTP
// request to run through the itsi middleware pipeline, a gRPC unary call to
// dispatch, or a shutdown marker that tells exactly one worker to exit.
type RequestJob struct {
	Kind RequestJobKind

	// HTTP
	Ctx Context

	// gRPC
	GRPCService GRPCService
	GRPCMethod  string
	GRPCReq     interface{}

	done chan jobResult
}

type jobResult struct {
	value interface{}
	err   error
}

// WorkerPool is a bounded MPMC job queue fed by the HTTP service pipeline (and
// by gRPC dispatch) and drained by N worker goroutines, each of which drives
// its own cooperative Scheduler so a worker can interleave many in-flight
// requests (up to fiberBatchSize at a time) instead of blocking one OS thread
// per request (§4.3, §4.7).
//
// Grounded on itsi_scheduler.rs's "N worker threads, each owning one
// Scheduler" model; Go worker goroutines stand in for the original's OS
// threads the same way Fiber stands in for stackful fibers (see scheduler.go).
type WorkerPool struct {
	jobs    chan *RequestJob
	workers int

	httpHandler func(ctx Context) error
	grpcHandler func(service GRPCService, method string, req interface{}) (interface{}, error)

	wg         sync.WaitGroup
	mu         sync.Mutex // guards schedulers during AddWorker/RemoveWorker resize
	schedulers []*Scheduler

	// activeWorkers tracks the live goroutine count across the initial Start
	// and any AddWorker/RemoveWorker resize driven by SIGTTIN/SIGTTOU (§6).
	activeWorkers atomic.Int64
}

// defaultQueueCapacity matches the original's ~1000-entry bounded MPMC queue.
const defaultQueueCapacity = 1000

// fiberBatchSize is the maximum number of jobs a worker pulls into its
// scheduler before calling Run() to drive them to completion (§4.7).
const fiberBatchSize = 25

// NewWorkerPool constructs a pool with `workers` goroutines reading off a
// queue of the given capacity (0 selects defaultQueueCapacity).
func NewWorkerPool(workers, queueCapacity int, httpHandler func(ctx Context) error, grpcHandler func(service GRPCService, method string, req interface{}) (interface{}, error)) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}
	return &WorkerPool{
		jobs:        make(chan *RequestJob, queueCapacity),
		workers:     workers,
		httpHandler: httpHandler,
		grpcHandler: grpcHandler,
		schedulers:  make([]*Scheduler, workers),
	}
}

// Start launches the worker goroutines. Each worker owns one Scheduler for its
// entire lifetime.
func (p *WorkerPool) Start() error {
	for i := 0; i < p.workers; i++ {
		sched, err := NewScheduler()
		if err != nil {
			return err
		}
		p.schedulers[i] = sched

		p.wg.Add(1)
		p.activeWorkers.Add(1)
		go p.runWorker(i, sched)
	}
	return nil
}

// AddWorker starts one additional worker goroutine with its own Scheduler,
// growing the pool in place (SIGTTIN, §6). Safe to call while the pool is
// already running.
func (p *WorkerPool) AddWorker() error {
	sched, err := NewScheduler()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.schedulers = append(p.schedulers, sched)
	index := len(p.schedulers) - 1
	p.mu.Unlock()

	p.wg.Add(1)
	p.activeWorkers.Add(1)
	go p.runWorker(index, sched)
	return nil
}

// RemoveWorker retires one worker (SIGTTOU, §6) by enqueueing a single
// JobShutdown job; whichever worker goroutine dequeues it exits. Does not
// target a specific goroutine, matching the job queue's FIFO, any-consumer
// semantics used everywhere else in the pool.
func (p *WorkerPool) RemoveWorker() {
	if p.activeWorkers.Load() <= 1 {
		return // always keep at least one worker alive
	}
	p.activeWorkers.Add(-1)
	p.jobs <- &RequestJob{Kind: JobShutdown}
}

// ActiveWorkers returns the current live worker-goroutine count.
func (p *WorkerPool) ActiveWorkers() int {
	return int(p.activeWorkers.Load())
}

// runWorker pulls up to fiberBatchSize jobs per iteration, spawns one fiber per
// job on its scheduler, then drives the scheduler's event loop until every
// fiber in the batch has completed (or the scheduler has no more work),
// repeating until it receives a JobShutdown job addressed to it.
func (p *WorkerPool) runWorker(index int, sched *Scheduler) {
	defer p.wg.Done()
	for {
		job, ok := <-p.jobs
		if !ok {
			return
		}
		if job.Kind == JobShutdown {
			if job.done != nil {
				job.done <- jobResult{}
			}
			return
		}

		batch := []*RequestJob{job}
	drain:
		for len(batch) < fiberBatchSize {
			select {
			case next, ok := <-p.jobs:
				if !ok {
					break drain
				}
				if next.Kind == JobShutdown {
					p.jobs <- next // put it back for the next iteration / another worker
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		var pending sync.WaitGroup
		for _, j := range batch {
			j := j
			pending.Add(1)
			sched.Fiber(func(f *Fiber) {
				defer pending.Done()
				p.runJob(j)
			})
		}
		sched.Run()
		pending.Wait()
	}
}

func (p *WorkerPool) runJob(job *RequestJob) {
	var result jobResult
	switch job.Kind {
	case ProcessHttp:
		result.err = p.httpHandler(job.Ctx)
	case ProcessGrpc:
		result.value, result.err = p.grpcHandler(job.GRPCService, job.GRPCMethod, job.GRPCReq)
	}
	if job.done != nil {
		job.done <- result
	}
}

// Dispatch enqueues an HTTP job and blocks until it completes.
func (p *WorkerPool) Dispatch(ctx Context) error {
	job := &RequestJob{Kind: ProcessHttp, Ctx: ctx, done: make(chan jobResult, 1)}
	p.jobs <- job
	res := <-job.done
	return res.err
}

// DispatchGRPC enqueues a gRPC unary job and blocks until it completes.
func (p *WorkerPool) DispatchGRPC(service GRPCService, method string, req interface{}) (interface{}, error) {
	job := &RequestJob{Kind: ProcessGrpc, GRPCService: service, GRPCMethod: method, GRPCReq: req, done: make(chan jobResult, 1)}
	p.jobs <- job
	res := <-job.done
	return res.value, res.err
}

// Shutdown enqueues one JobShutdown per worker (so each worker sees exactly
// one and exits), then waits up to timeout for all workers to drain before
// force-returning (§4.7's "one Shutdown job per worker + force-kill after
// deadline"). The worker count is swapped to zero up front, so a second
// Shutdown enqueues nothing and workers exit exactly once.
func (p *WorkerPool) Shutdown(timeout time.Duration) {
	count := int(p.activeWorkers.Swap(0))
	for i := 0; i < count; i++ {
		p.jobs <- &RequestJob{Kind: JobShutdown}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		// Force-kill: workers that haven't drained are abandoned; their
		// in-flight fibers are goroutines that will exit when the process
		// does, matching the original's "graceful, then force" shutdown step.
	}
}
