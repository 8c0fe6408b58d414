package ingress

import "sync"

// Pool runs webhook jobs on a fixed set of workers behind a bounded
// queue. Saturation is reported to the caller instead of blocking the
// HTTP handler, so the channel's own redelivery handles the overflow.
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool{jobs: make(chan func(), queueSize)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// TrySubmit enqueues a job, reporting false when the queue is full.
func (p *Pool) TrySubmit(job func()) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Close stops accepting jobs and waits for in-flight ones to finish.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}
