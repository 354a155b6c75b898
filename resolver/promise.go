package resolver

import (
	"context"
	"sync"
	"time"
)

// promise is a write-once result. The first resolve or reject wins; every
// later attempt reports false and changes nothing.
type promise[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newPromise[T any]() *promise[T] {
	return &promise[T]{done: make(chan struct{})}
}

func (p *promise[T]) resolve(v T) bool {
	return p.complete(v, nil)
}

func (p *promise[T]) reject(err error) bool {
	var zero T
	return p.complete(zero, err)
}

func (p *promise[T]) complete(v T, err error) bool {
	won := false
	p.once.Do(func() {
		p.val, p.err = v, err
		close(p.done)
		won = true
	})
	return won
}

// settled reports whether the promise has been completed.
func (p *promise[T]) settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// result returns the completed value. It must only be called once the
// promise has settled.
func (p *promise[T]) result() (T, error) {
	<-p.done
	return p.val, p.err
}

// wait blocks until the promise settles, ctx ends or timeout elapses
// (timeout <= 0 disables it). On ctx end or timeout the promise is rejected
// with the corresponding error, unless it settled concurrently, in which case
// the settled value wins. expired is true only when wait itself rejected.
func (p *promise[T]) wait(ctx context.Context, timeout time.Duration) (v T, expired bool, err error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-p.done:
		v, err = p.result()
		return v, false, err
	case <-ctx.Done():
		if p.reject(ctx.Err()) {
			return v, true, ctx.Err()
		}
	case <-timer:
		if p.reject(ErrTimeout) {
			return v, true, ErrTimeout
		}
	}
	v, err = p.result()
	return v, false, err
}
