// Package sink exports simulator activity to external systems without ever
// blocking the simulator: every sink hands work to a bounded queue drained by
// its own worker goroutine.
package sink

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleetfusion/internal/metrics"
)

// DefaultQueueSize is the per-sink backlog before items are dropped.
const DefaultQueueSize = 256

type job func(ctx context.Context) error

type queue struct {
	name string
	jobs chan job
	wg   sync.WaitGroup
	once sync.Once
	stop chan struct{}
}

func newQueue(name string, size int) *queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &queue{name: name, jobs: make(chan job, size), stop: make(chan struct{})}
}

// enqueue never blocks; a full queue drops the job.
func (q *queue) enqueue(j job) bool {
	select {
	case <-q.stop:
		return false
	default:
	}
	select {
	case q.jobs <- j:
		return true
	default:
		metrics.SinkDrops.WithLabelValues(q.name).Inc()
		log.WithField("sink", q.name).Warn("Sink queue full, dropping item")
		return false
	}
}

// start runs the worker until ctx is cancelled or close is called. Jobs
// already queued at close are still processed.
func (q *queue) start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case j := <-q.jobs:
				q.exec(ctx, j)
			case <-ctx.Done():
				return
			case <-q.stop:
				for {
					select {
					case j := <-q.jobs:
						q.exec(ctx, j)
					default:
						return
					}
				}
			}
		}
	}()
}

func (q *queue) exec(ctx context.Context, j job) {
	if err := j(ctx); err != nil {
		log.WithError(err).WithField("sink", q.name).Error("Sink export failed")
	}
}

func (q *queue) close() {
	q.once.Do(func() { close(q.stop) })
	q.wg.Wait()
}
