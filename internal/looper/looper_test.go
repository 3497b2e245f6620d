package looper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooper_RunsTasksInOrder(t *testing.T) {
	l := New("test-looper", nil)
	defer l.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, l.Sync(context.Background(), func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v, "tasks MUST run in posting order")
	}
}

func TestLooper_PostDelayed(t *testing.T) {
	l := New("test-looper", nil)
	defer l.Close()

	fired := make(chan struct{}, 2)
	l.PostDelayed(10*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("delayed task MUST run")
	}
}

func TestLooper_CancelDelayed(t *testing.T) {
	// GOAL: A delayed task cancelled from the looper never runs
	//
	// TEST SCENARIO: schedule → cancel on the looper → wait past deadline → task did not run

	l := New("test-looper", nil)
	defer l.Close()

	var mu sync.Mutex
	ran := false
	cancel := l.PostDelayed(20*time.Millisecond, func() {
		mu.Lock()
		ran = true
		mu.Unlock()
	})

	var cancelled bool
	require.NoError(t, l.Sync(context.Background(), func() { cancelled = cancel() }))
	assert.True(t, cancelled, "first cancel MUST report success")
	assert.False(t, cancel(), "second cancel MUST report nothing to cancel")

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, l.Sync(context.Background(), func() {}))

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, ran, "cancelled task MUST NOT run")
}

func TestLooper_CancelAfterFire(t *testing.T) {
	l := New("test-looper", nil)
	defer l.Close()

	fired := make(chan struct{})
	cancel := l.PostDelayed(time.Millisecond, func() { close(fired) })
	<-fired

	assert.False(t, cancel(), "cancel MUST report false once the task has run")
}

func TestLooper_Close(t *testing.T) {
	l := New("test-looper", nil)
	l.Close()
	l.Close()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop MUST exit after Close")
	}

	assert.False(t, l.Post(func() {}), "Post MUST fail after Close")
	assert.ErrorIs(t, l.Sync(context.Background(), func() {}), ErrClosed)
}

func TestLooper_CloseFromTask(t *testing.T) {
	l := New("test-looper", nil)

	l.Post(func() { l.Close() })

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("Close from a task MUST NOT deadlock")
	}
}

func TestLooper_RecoversPanics(t *testing.T) {
	l := New("test-looper", nil)
	defer l.Close()

	l.Post(func() { panic("boom") })

	ok := false
	require.NoError(t, l.Sync(context.Background(), func() { ok = true }))
	assert.True(t, ok, "looper MUST keep running after a task panics")
}
