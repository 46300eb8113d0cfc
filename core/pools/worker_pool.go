package pools

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a fixed set of goroutines draining one shared FIFO queue.
//
// Jobs are plain values handed to a single handler, so a queued job never
// captures state beyond what it explicitly carries. The queue is unbounded:
// Submit never blocks and never drops while the pool is open.
type WorkerPool[J any] struct {
	numWorkers int
	handle     func(J)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []J
	closed bool
	wg     sync.WaitGroup

	stats struct {
		tasksSubmitted atomic.Uint64
		tasksCompleted atomic.Uint64
	}
}

// NewWorkerPool starts numWorkers goroutines running handle for each job.
// numWorkers <= 0 means one per CPU.
func NewWorkerPool[J any](numWorkers int, handle func(J)) *WorkerPool[J] {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	p := &WorkerPool[J]{
		numWorkers: numWorkers,
		handle:     handle,
		queue:      make([]J, 0, 256),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.run()
	}

	return p
}

// Submit enqueues a job and wakes one idle worker.
// It returns false once the pool is closed.
func (p *WorkerPool[J]) Submit(job J) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.queue = append(p.queue, job)
	p.stats.tasksSubmitted.Add(1)
	p.mu.Unlock()

	p.cond.Signal()
	return true
}

func (p *WorkerPool[J]) run() {
	defer p.wg.Done()

	var zero J
	p.mu.Lock()
	for {
		if len(p.queue) > 0 {
			job := p.queue[0]
			p.queue[0] = zero
			p.queue = p.queue[1:]
			p.mu.Unlock()

			p.handle(job)
			p.stats.tasksCompleted.Add(1)

			p.mu.Lock()
			continue
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		p.cond.Wait()
	}
}

// Close stops accepting jobs, lets workers drain what is queued and waits
// for them to exit. Calling Close more than once is a no-op.
func (p *WorkerPool[J]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
}

// Pending returns the number of queued, not yet started jobs
func (p *WorkerPool[J]) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stats returns pool statistics
func (p *WorkerPool[J]) Stats() WorkerPoolStats {
	submitted := p.stats.tasksSubmitted.Load()
	completed := p.stats.tasksCompleted.Load()
	return WorkerPoolStats{
		NumWorkers:     p.numWorkers,
		TasksSubmitted: submitted,
		TasksCompleted: completed,
		TasksPending:   submitted - completed,
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int    `json:"num_workers"`
	TasksSubmitted uint64 `json:"tasks_submitted"`
	TasksCompleted uint64 `json:"tasks_completed"`
	TasksPending   uint64 `json:"tasks_pending"`
}
