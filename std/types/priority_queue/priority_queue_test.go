package priority_queue_test

import (
	"testing"

	"github.com/mctp-go/mctpd/std/types/priority_queue"
	"github.com/stretchr/testify/require"
)

func TestOrder(t *testing.T) {
	pq := priority_queue.New[string, int]()
	pq.Push("c", 3)
	pq.Push("a", 1)
	pq.Push("b", 2)
	pq.Push("a2", 1)

	require.Equal(t, 4, pq.Len())
	require.Equal(t, 1, pq.PeekPriority())

	got := []string{}
	for pq.Len() > 0 {
		got = append(got, pq.Pop())
	}
	require.Equal(t, []string{"a", "a2", "b", "c"}, got)
}

func TestRemove(t *testing.T) {
	var pq priority_queue.Queue[int, int64]
	x := pq.Push(1, 10)
	y := pq.Push(2, 20)
	pq.Push(3, 30)

	require.True(t, pq.Remove(y))
	require.False(t, pq.Remove(y))
	require.Equal(t, 1, pq.Pop())
	require.False(t, pq.Remove(x))
	require.Equal(t, int64(30), pq.PeekPriority())
	require.Equal(t, 3, pq.Pop())
	require.Zero(t, pq.Len())
}
