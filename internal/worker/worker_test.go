package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadmax/pipepulse/internal/bus"
)

func TestNewWorker(t *testing.T) {
	w := NewWorker("test-worker", 0)

	assert.Equal(t, "test-worker", w.id)
	assert.NotNil(t, w.handlers)
	assert.Equal(t, defaultBuffer, cap(w.events))
}

func TestRegisterHandler(t *testing.T) {
	w := NewWorker("test-worker", 1)

	w.RegisterHandler(bus.PipelineCompleted, func(ctx context.Context, evt bus.Event) error { return nil })

	assert.Contains(t, w.handlers, bus.PipelineCompleted)
}

func TestWorker_DispatchesInArrivalOrder(t *testing.T) {
	w := NewWorker("test-worker", 10)

	var mu sync.Mutex
	var seen []int64
	handled := make(chan struct{}, 10)
	record := func(ctx context.Context, evt bus.Event) error {
		mu.Lock()
		seen = append(seen, evt.ProjectID)
		mu.Unlock()
		handled <- struct{}{}
		return nil
	}
	w.RegisterHandler(bus.PipelineCompleted, record)
	w.RegisterHandler(bus.IncidentDetected, record)

	go w.Start(context.Background())
	defer w.Stop()

	require.True(t, w.Submit(bus.Event{Type: bus.PipelineCompleted, ProjectID: 1}))
	require.True(t, w.Submit(bus.Event{Type: bus.IncidentDetected, ProjectID: 2}))
	require.True(t, w.Submit(bus.Event{Type: bus.PipelineCompleted, ProjectID: 3}))

	for i := 0; i < 3; i++ {
		select {
		case <-handled:
		case <-time.After(time.Second):
			t.Fatal("event not handled")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2, 3}, seen)
}

func TestWorker_HandlerErrorDoesNotStopLoop(t *testing.T) {
	w := NewWorker("test-worker", 10)

	handled := make(chan int64, 10)
	w.RegisterHandler(bus.IncidentResolved, func(ctx context.Context, evt bus.Event) error {
		handled <- evt.ProjectID
		if evt.ProjectID == 1 {
			return errors.New("incident not found")
		}
		return nil
	})

	go w.Start(context.Background())
	defer w.Stop()

	w.Submit(bus.Event{Type: "unknown_type", ProjectID: 9})
	w.Submit(bus.Event{Type: bus.IncidentResolved, ProjectID: 1})
	w.Submit(bus.Event{Type: bus.IncidentResolved, ProjectID: 2})

	var got []int64
	for i := 0; i < 2; i++ {
		select {
		case id := <-handled:
			got = append(got, id)
		case <-time.After(time.Second):
			t.Fatal("event not handled")
		}
	}

	assert.Equal(t, []int64{1, 2}, got)
}

func TestWorkerStartStop(t *testing.T) {
	w := NewWorker("test-worker", 1)

	go w.Start(context.Background())
	w.Stop()
	w.Stop()

	assert.False(t, w.Submit(bus.Event{Type: bus.PipelineCompleted}))
}

func TestWorker_StopsOnContextCancel(t *testing.T) {
	w := NewWorker("test-worker", 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_StopWithoutStart(t *testing.T) {
	w := NewWorker("test-worker", 1)

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a worker that never started")
	}

	assert.False(t, w.Submit(bus.Event{Type: bus.PipelineCompleted}))

	returned := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Start kept running after Stop")
	}
}
