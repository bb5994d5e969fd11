package transcribe

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// QueueStats reports the current state of the processing queue.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Active    int   `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// PoolOptions configures the worker pool.
type PoolOptions struct {
	Pipeline  *Pipeline
	Workers   int
	QueueSize int
	Log       zerolog.Logger
}

// Pool runs queued job ids through the pipeline on a fixed set of workers.
type Pool struct {
	jobs     chan int64
	pipeline *Pipeline
	opts     PoolOptions
	log      zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	active    atomic.Int32
	completed atomic.Int64
	failed    atomic.Int64
}

func NewPool(opts PoolOptions) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:     make(chan int64, opts.QueueSize),
		pipeline: opts.Pipeline,
		opts:     opts,
		log:      opts.Log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info().Int("workers", p.opts.Workers).Int("queue_size", p.opts.QueueSize).Msg("worker pool started")
}

// Stop closes the queue, lets in-flight jobs finish, then cancels their
// context source.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.cancel()
	p.log.Info().
		Int64("completed", p.completed.Load()).
		Int64("failed", p.failed.Load()).
		Msg("worker pool stopped")
}

// Enqueue adds a job id to the queue. Returns false if the queue is full;
// the job row stays pending and the caller decides how to report it.
func (p *Pool) Enqueue(jobID int64) bool {
	select {
	case p.jobs <- jobID:
		return true
	default:
		return false
	}
}

// Stats returns current queue statistics.
func (p *Pool) Stats() QueueStats {
	return QueueStats{
		Pending:   len(p.jobs),
		Active:    int(p.active.Load()),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// QueueDepth reports jobs waiting in the queue.
func (p *Pool) QueueDepth() int { return len(p.jobs) }

// ActiveWorkers reports workers currently processing a job.
func (p *Pool) ActiveWorkers() int { return int(p.active.Load()) }

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.log.With().Int("worker", id).Logger()

	for jobID := range p.jobs {
		p.active.Add(1)
		if err := p.pipeline.Process(p.ctx, jobID); err != nil {
			p.failed.Add(1)
			log.Warn().Err(err).Int64("job_id", jobID).Msg("job processing failed")
		} else {
			p.completed.Add(1)
		}
		p.active.Add(-1)
	}
}
