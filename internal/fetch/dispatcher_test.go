package fetch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RunsInOrder(t *testing.T) {
	d := NewDispatcher()

	var got []int
	for i := 0; i < 100; i++ {
		require.True(t, d.Post(func() { got = append(got, i) }))
	}
	d.Close()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestDispatcher_ConcurrentPosts(t *testing.T) {
	d := NewDispatcher()

	var (
		wg    sync.WaitGroup
		count int // only touched on the dispatcher goroutine
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.Post(func() { count++ })
			}
		}()
	}
	wg.Wait()
	d.Close()

	assert.Equal(t, 400, count)
}

func TestDispatcher_PostAfterClose(t *testing.T) {
	d := NewDispatcher()
	d.Close()

	assert.False(t, d.Post(func() { t.Error("must not run") }))
	d.Close()
}

func TestDispatcher_SurvivesPanickingCallback(t *testing.T) {
	d := NewDispatcher()

	ran := false
	d.Post(func() { panic("bad completion") })
	d.Post(func() { ran = true })
	d.Close()

	assert.True(t, ran)
}

func TestFetchError(t *testing.T) {
	err := &FetchError{Kind: KindDecode, Op: "fetch image", Err: assert.AnError}

	assert.Equal(t, "fetch image: decode error: "+assert.AnError.Error(), err.Error())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, KindDecode, KindOf(err))
	assert.Equal(t, ErrorKind(0), KindOf(assert.AnError))
	assert.Equal(t, "unknown", ErrorKind(0).String())
}
