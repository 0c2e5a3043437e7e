package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

// Task is one page waiting to be fetched and extracted.
type Task struct {
	URL       string
	Referer   string
	Depth     int
	CreatedAt time.Time
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Done()
	Size() int
	Close() error
}

// InMemoryQueue is a FIFO frontier. Pop blocks while the queue is empty but
// popped tasks are still being worked on, since those may push continuations.
// Once nothing is queued and nothing is in flight Pop returns ErrQueueEmpty.
type InMemoryQueue struct {
	mu      sync.Mutex
	tasks   []*Task
	pending int
	closed  bool
	changed chan struct{}
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks:   make([]*Task, 0),
		changed: make(chan struct{}),
	}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	q.tasks = append(q.tasks, task)
	q.notify()

	return nil
}

func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()

		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}

		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks = q.tasks[1:]
			q.pending++
			q.mu.Unlock()
			return task, nil
		}

		if q.pending == 0 {
			q.mu.Unlock()
			return nil, ErrQueueEmpty
		}

		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// Done marks a popped task as finished.
func (q *InMemoryQueue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending > 0 {
		q.pending--
	}
	q.notify()
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.notify()
	}

	return nil
}

// notify wakes every blocked Pop. Callers hold q.mu.
func (q *InMemoryQueue) notify() {
	close(q.changed)
	q.changed = make(chan struct{})
}
