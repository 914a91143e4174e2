package pool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type outcome[R any] struct {
	value R
	err   error
}

// Task is the single-use handle to a submitted job.
type Task[R any] struct {
	id        string
	submitted time.Time
	result    chan outcome[R]
	done      chan struct{}
	consumed  atomic.Bool
}

func newTask[R any]() *Task[R] {
	return &Task[R]{
		id:        uuid.NewString(),
		submitted: time.Now(),
		result:    make(chan outcome[R], 1),
		done:      make(chan struct{}),
	}
}

// ID returns the task's unique id.
func (t *Task[R]) ID() string { return t.id }

// Done is closed once the job has finished.
func (t *Task[R]) Done() <-chan struct{} { return t.done }

// Await blocks until the job finishes or ctx ends. The result can be taken
// once; later calls return ErrTaskConsumed. A ctx error leaves the result in
// place for another Await.
func (t *Task[R]) Await(ctx context.Context) (R, error) {
	var zero R
	if t.consumed.Load() {
		return zero, ErrTaskConsumed
	}
	select {
	case out := <-t.result:
		t.consumed.Store(true)
		return out.value, out.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-t.done:
		// another waiter took the value between the check and the select
		select {
		case out := <-t.result:
			t.consumed.Store(true)
			return out.value, out.err
		default:
			return zero, ErrTaskConsumed
		}
	}
}

func (t *Task[R]) complete(value R, err error) {
	t.result <- outcome[R]{value: value, err: err}
	close(t.done)
}
