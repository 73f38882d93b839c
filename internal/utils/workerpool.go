// Package utils holds the ambient concurrency plumbing shared by the
// TCP frontend: a fixed-size pool of goroutines draining a task queue
// under a tomb for coordinated shutdown.
package utils

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const taskChanSize = 100

type WorkerFunction = func(t *tomb.Tomb, task any) error

type WorkerPool struct {
	n     int            // number of workers
	tasks chan any       // task connection pool
	work  WorkerFunction // do-work callback, set by Setup
}

func NewWorkerPool(size int) WorkerPool {
	return WorkerPool{
		tasks: make(chan any, taskChanSize),
		n:     size,
	}
}

// AddTask enqueues a unit of work (a net.Conn, for the TCP server) for
// the next free worker to pick up.
func (pool *WorkerPool) AddTask(task any) {
	pool.tasks <- task
}

// Setup keeps the pool full of workers until t starts dying. Each
// worker runs one task and exits; Setup replaces it immediately if the
// tomb is still alive, so the pool never over- or under-provisions.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	pool.work = work

	log.Info().Int("activeWorkers", pool.n).Msg("adding workers")
	activeWorkers := make(chan struct{}, pool.n)
	for {
		select {
		case <-t.Dying():
			return
		case activeWorkers <- struct{}{}:
			t.Go(func() error {
				err := pool.worker(t)
				<-activeWorkers
				return err
			})
		}
	}
}

// worker waits on a single task from the pool and actions it.
func (pool *WorkerPool) worker(t *tomb.Tomb) error {
	log.Info().Msg("worker starting")
	select {
	case <-t.Dying():
		return nil
	case task := <-pool.tasks:
		if err := pool.work(t, task); err != nil {
			log.Error().Err(err).Msg("worker exiting")
			return err
		}
	}
	return nil
}
