// Package jobs contains the poll-driven worker used by the index build to
// retry embeddings that failed on the first pass.
package jobs

import (
	"context"
	"errors"
	"log"
	"time"
)

// ErrDrained is returned by a processor when there is no work left; the
// worker exits cleanly on it.
var ErrDrained = errors.New("no work remaining")

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker polls a processor on a fixed interval until the work is drained,
// the context is cancelled, or Stop is called.
type Worker struct {
	processor    JobProcessor
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// NewWorker creates a new Worker instance
func NewWorker(processor JobProcessor, pollInterval time.Duration) *Worker {
	return &Worker{
		processor:    processor,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start runs the worker's polling loop. It blocks until the processor
// reports ErrDrained, the context is cancelled, or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("worker started with poll interval: %v", w.pollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("worker stopped: context cancelled")
			return
		case <-w.stopChan:
			log.Println("worker stopped: stop signal received")
			return
		case <-ticker.C:
			err := w.processor.ProcessJobs(ctx)
			if errors.Is(err, ErrDrained) {
				log.Println("worker finished: work drained")
				return
			}
			if err != nil {
				log.Printf("error processing jobs: %v", err)
			}
		}
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	log.Println("worker shutdown complete")
}
