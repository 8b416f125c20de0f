package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/msto63/voicelistener/pkg/core/metrics"
)

// DefaultWorkers bounds concurrently running pipelines
const DefaultWorkers = 4

// Runner processes a job
type Runner interface {
	Run(ctx context.Context, job Job) Record
}

// Pool runs jobs in the background with a bounded number in flight.
// Submit never blocks: when every slot is busy the job waits for one in
// its own goroutine.
type Pool struct {
	ctx     context.Context
	runner  Runner
	metrics *metrics.Metrics

	group   errgroup.Group
	waiting sync.WaitGroup
}

// NewPool creates a pool running jobs with ctx. workers <= 0 uses
// DefaultWorkers.
func NewPool(ctx context.Context, runner Runner, workers int, m *metrics.Metrics) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if m == nil {
		m = metrics.NewNop()
	}
	p := &Pool{ctx: ctx, runner: runner, metrics: m}
	p.group.SetLimit(workers)
	return p
}

// Submit hands job to the pool
func (p *Pool) Submit(job Job) {
	p.metrics.InFlight.Add(p.ctx, 1)
	task := func() error {
		defer p.metrics.InFlight.Add(p.ctx, -1)
		p.runner.Run(p.ctx, job)
		return nil
	}

	if p.group.TryGo(task) {
		return
	}
	p.waiting.Add(1)
	go func() {
		defer p.waiting.Done()
		p.group.Go(task)
	}()
}

// Wait blocks until every submitted job has finished. Do not Submit
// concurrently with Wait.
func (p *Pool) Wait() {
	p.waiting.Wait()
	_ = p.group.Wait()
}
