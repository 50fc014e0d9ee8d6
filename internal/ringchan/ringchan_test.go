package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendOverwritesOldest(t *testing.T) {
	rc := New[int](3)
	for i := 0; i < 10; i++ {
		rc.Send(i)
	}
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{7, 8, 9}, got, "ring MUST keep only the newest values")

	m := rc.GetMetrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)
}

func TestTryReceiveAndReceive(t *testing.T) {
	rc := New[string](1)
	rc.Send("a")
	assert.True(t, rc.Send("b"), "Send MUST report the dropped element when full")
	assert.Equal(t, 1, rc.Len())
	assert.Equal(t, 1, rc.Cap())

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = rc.TryReceive()
	assert.False(t, ok)

	rc.Send("c")
	v, ok = rc.Receive()
	require.True(t, ok)
	assert.Equal(t, "c", v)
	assert.Equal(t, int64(2), rc.GetMetrics().Processed)
}

func TestSendAfterCloseIsDiscarded(t *testing.T) {
	rc := New[int](2)
	rc.Close()
	rc.Close()

	assert.NotPanics(t, func() { rc.Send(1) }, "Send after Close MUST NOT panic")
	assert.False(t, rc.Send(2))
	assert.True(t, rc.Closed())
	assert.Equal(t, int64(2), rc.GetMetrics().Errors)

	_, ok := rc.Receive()
	assert.False(t, ok)
}

func TestConcurrentSendersNeverBlock(t *testing.T) {
	rc := New[int](4)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				rc.Send(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, rc.Len())
	m := rc.GetMetrics()
	assert.Equal(t, int64(8000), m.Written)
	assert.Equal(t, int64(7996), m.Overwritten)
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
