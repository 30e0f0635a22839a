package orchestration

import (
	"context"
	"sync"
	"sync/atomic"
)

// mailbox is an unbounded FIFO. Pushing never blocks, so a worker can post
// back into an actor while the actor is waiting on that worker's lock.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{notify: make(chan struct{}, 1)}
}

func (m *mailbox[T]) push(item T) {
	m.mu.Lock()
	m.items = append(m.items, item)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) pop() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if len(m.items) == 0 {
		return zero, false
	}

	item := m.items[0]
	m.items[0] = zero
	m.items = m.items[1:]
	if len(m.items) == 0 {
		m.items = nil
	}
	return item, true
}

func (m *mailbox[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// actorRuntime runs posted tasks one at a time, in post order, on a single
// goroutine. Everything a task touches is owned by that goroutine.
type actorRuntime struct {
	name string

	inbox   *mailbox[func()]
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once

	started atomic.Bool
}

func newActorRuntime(name string) *actorRuntime {
	return &actorRuntime{
		name:    name,
		inbox:   newMailbox[func()](),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (runtime *actorRuntime) start() (started bool) {
	if runtime.isClosed() {
		return false
	}

	runtime.startOnce.Do(func() {
		if runtime.isClosed() {
			return
		}

		started = true
		runtime.started.Store(true)
		go func() {
			defer close(runtime.done)

			for {
				select {
				case <-runtime.closeCh:
					return
				case <-runtime.inbox.notify:
				}

				for {
					if runtime.isClosed() {
						return
					}
					task, ok := runtime.inbox.pop()
					if !ok {
						break
					}
					runWorker(context.Background(), runtime.name, func(context.Context) error {
						task()
						return nil
					})
				}
			}
		}()
	})

	return started
}

// post queues task for the loop. It reports false once the runtime has ended.
func (runtime *actorRuntime) post(task func()) bool {
	if runtime.isClosed() {
		return false
	}

	runtime.inbox.push(task)
	return true
}

func (runtime *actorRuntime) end() {
	runtime.endOnce.Do(func() {
		close(runtime.closeCh)
	})
}

func (runtime *actorRuntime) waitUntilEnded() {
	if runtime.started.Load() {
		<-runtime.done
	}
}

func (runtime *actorRuntime) isClosed() bool {
	select {
	case <-runtime.closeCh:
		return true
	default:
		return false
	}
}
