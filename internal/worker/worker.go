// Package worker provides the background processor that consumes pipeline
// and incident events in arrival order and dispatches them to handlers.
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/nadmax/pipepulse/internal/bus"
	"github.com/nadmax/pipepulse/internal/metrics"
)

const defaultBuffer = 256

type EventHandler func(context.Context, bus.Event) error

type Worker struct {
	id       string
	events   chan bus.Event
	handlers map[bus.EventType]EventHandler
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
}

func NewWorker(id string, buffer int) *Worker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	return &Worker{
		id:       id,
		events:   make(chan bus.Event, buffer),
		handlers: make(map[bus.EventType]EventHandler),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// RegisterHandler must be called before Start.
func (w *Worker) RegisterHandler(eventType bus.EventType, handler EventHandler) {
	w.handlers[eventType] = handler
}

// Submit queues an event, blocking while the buffer is full. It reports false
// once the worker has been stopped.
func (w *Worker) Submit(evt bus.Event) bool {
	select {
	case <-w.stop:
		return false
	default:
	}

	select {
	case w.events <- evt:
		return true
	case <-w.stop:
		return false
	}
}

// Start runs the dispatch loop until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	defer close(w.done)
	log.Printf("Worker %s started", w.id)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %s stopped: %v", w.id, ctx.Err())
			return
		case <-w.stop:
			log.Printf("Worker %s stopped", w.id)
			return
		case evt := <-w.events:
			w.processEvent(ctx, evt)
		}
	}
}

func (w *Worker) processEvent(ctx context.Context, evt bus.Event) {
	handler, exists := w.handlers[evt.Type]
	if !exists {
		err := fmt.Errorf("no handler for event type: %s", evt.Type)
		metrics.RecordEventProcessed(string(evt.Type), err)
		log.Printf("Worker %s skipped event: %v", w.id, err)
		return
	}

	err := handler(ctx, evt)
	metrics.RecordEventProcessed(string(evt.Type), err)
	if err != nil {
		log.Printf("Worker %s failed to process %s for project %d: %v", w.id, evt.Type, evt.ProjectID, err)
		return
	}

	log.Printf("Worker %s processed %s for project %d", w.id, evt.Type, evt.ProjectID)
}

// Stop ends the loop and waits for the in-flight event to finish. It is safe
// to call more than once, and returns at once when Start never ran.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })

	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	if started {
		<-w.done
	}
}
