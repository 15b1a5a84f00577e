package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainRunsInPostOrder(t *testing.T) {
	q := NewQueue()
	var got []int
	for i := 0; i < 3; i++ {
		q.Post(func() { got = append(got, i) })
	}
	assert.Equal(t, 3, q.Drain())
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Equal(t, 0, q.Drain())
}

func TestPostDuringDrainRunsNextTime(t *testing.T) {
	q := NewQueue()
	ran := 0
	q.Post(func() {
		ran++
		q.Post(func() { ran++ })
	})
	assert.Equal(t, 1, q.Drain())
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, q.Drain())
	assert.Equal(t, 2, ran)
}

func TestRunOneWaitsForGoroutinePost(t *testing.T) {
	q := NewQueue()
	done := false
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Post(func() { done = true })
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.RunOne(ctx))
	assert.True(t, done)
}

func TestWaitHonoursContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)
}

func TestImmediateRunsInline(t *testing.T) {
	ran := false
	Immediate{}.Post(func() { ran = true })
	assert.True(t, ran)
}
