package worker

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"

	"gpix/src/session"
)

// ProcessFunc turns a crop into text. It runs on a worker goroutine.
type ProcessFunc func(ctx context.Context, crop session.Crop) (string, error)

// ResultCallback is invoked on completion (from a worker goroutine).
// The event loop should pass a closure that posts back into the event loop safely.
type ResultCallback func(text string, err error)

// Pool is a fixed-size worker pool with a 1-slot input queue (strict back-pressure).
type Pool struct {
	process ProcessFunc
	jobs    chan job
	wg      sync.WaitGroup
	once    sync.Once
}

type job struct {
	ctx  context.Context
	crop session.Crop
	cb   ResultCallback
}

// New creates a worker pool. Size defaults to NumCPU when size<=0. Queue is 1 slot.
func New(size int, process ProcessFunc) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{process: process, jobs: make(chan job, 1)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				log.Printf("worker: processing region %dx%d", j.crop.Width, j.crop.Height)
				text, err := p.run(j)
				log.Printf("worker: done, text length=%d, err=%v", len(text), err)
				j.cb(text, err)
			}
		}()
	}
}

// run isolates a panicking ProcessFunc so the callback always fires.
func (p *Pool) run(j job) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker: recovered panic: %v", r)
			text, err = "", fmt.Errorf("worker panic: %v", r)
		}
	}()
	return p.process(j.ctx, j.crop)
}

// Submit enqueues a job if the single-slot queue is free. Returns false if dropped.
func (p *Pool) Submit(ctx context.Context, crop session.Crop, cb ResultCallback) bool {
	select {
	case p.jobs <- job{ctx: ctx, crop: crop, cb: cb}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.jobs) })
	p.wg.Wait()
}
