// Package looper provides a single-goroutine dispatch context. Tasks posted
// to a Looper run one at a time, in posting order, on the same goroutine, so
// state owned by that goroutine needs no further locking.
package looper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/groutine"
)

// ErrClosed is returned when work is handed to a closed Looper.
var ErrClosed = errors.New("looper is closed")

// Looper runs posted tasks sequentially on a dedicated named goroutine.
type Looper struct {
	name   string
	logger *logrus.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

// New starts a Looper whose goroutine is labelled name.
func New(name string, logger *logrus.Logger) *Looper {
	if logger == nil {
		logger = logrus.New()
	}
	l := &Looper{
		name:   name,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	groutine.Go(context.Background(), name, func(ctx context.Context) {
		l.loop()
	})
	return l
}

// Post enqueues fn. It reports false when the Looper is closed and fn was
// dropped.
func (l *Looper) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	select {
	case l.wake <- struct{}{}:
	default:
	}
	l.mu.Unlock()
	return true
}

// PostDelayed enqueues fn after d. The returned cancel function prevents fn
// from running and reports whether it did so; once fn has started, cancel
// returns false. Calling cancel from the looper itself is race free: a task
// cancelled there will never run.
func (l *Looper) PostDelayed(d time.Duration, fn func()) (cancel func() bool) {
	const (
		pending int32 = iota
		fired
		cancelled
	)
	var state atomic.Int32

	timer := time.AfterFunc(d, func() {
		l.Post(func() {
			if state.CompareAndSwap(pending, fired) {
				fn()
			}
		})
	})

	return func() bool {
		if state.CompareAndSwap(pending, cancelled) {
			timer.Stop()
			return true
		}
		return false
	}
}

// Sync runs fn on the looper and waits for it to return. It must not be
// called from a task running on the same Looper.
func (l *Looper) Sync(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the Looper after the task in progress and discards pending
// tasks. It does not wait; use Done for that. Close is safe to call from a
// task.
func (l *Looper) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	close(l.wake)
}

// Done is closed once the loop goroutine has exited.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

func (l *Looper) loop() {
	defer close(l.done)
	for range l.wake {
		for {
			l.mu.Lock()
			if l.closed || len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.run(fn)
		}
	}
}

func (l *Looper) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithFields(logrus.Fields{
				"looper": l.name,
				"panic":  r,
			}).Error("Task panicked")
		}
	}()
	fn()
}
