package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromise_FirstCompletionWins(t *testing.T) {
	p := newPromise[string]()
	assert.False(t, p.settled())

	assert.True(t, p.resolve("a"))
	assert.False(t, p.resolve("b"))
	assert.False(t, p.reject(errors.New("late")))
	assert.True(t, p.settled())

	v, err := p.result()
	require.NoError(t, err)
	assert.Equal(t, "a", v)
}

func TestPromise_ConcurrentCompletion(t *testing.T) {
	p := newPromise[int]()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.resolve(i) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestPromise_WaitResolved(t *testing.T) {
	p := newPromise[string]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		p.resolve("done")
	}()

	v, expired, err := p.wait(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, "done", v)
}

func TestPromise_WaitTimeout(t *testing.T) {
	p := newPromise[string]()

	_, expired, err := p.wait(context.Background(), 20*time.Millisecond)
	assert.True(t, expired)
	assert.ErrorIs(t, err, ErrTimeout)

	// The timeout settled the promise; later completions are ignored.
	assert.False(t, p.resolve("late"))
}

func TestPromise_WaitContextCanceled(t *testing.T) {
	p := newPromise[string]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, expired, err := p.wait(ctx, time.Minute)
	assert.True(t, expired)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPromise_WaitRejected(t *testing.T) {
	p := newPromise[string]()
	boom := errors.New("boom")
	p.reject(boom)

	_, expired, err := p.wait(context.Background(), time.Minute)
	assert.False(t, expired)
	assert.ErrorIs(t, err, boom)
}
