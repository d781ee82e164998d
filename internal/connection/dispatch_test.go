package connection

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchQueue_OrderAcrossGrowth(t *testing.T) {
	q := newDispatchQueue(2)
	var got []int
	for i := 0; i < 10; i++ {
		require.True(t, q.push(func() { got = append(got, i) }))
	}
	assert.Equal(t, 10, q.len())

	q.close()
	q.run(slog.Default())

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestDispatchQueue_PushAfterClose(t *testing.T) {
	q := newDispatchQueue(1)
	q.close()
	assert.False(t, q.push(func() {}))
}

func TestDispatchQueue_PanicDoesNotStopRun(t *testing.T) {
	q := newDispatchQueue(4)
	ran := false
	q.push(func() { panic("boom") })
	q.push(func() { ran = true })
	q.close()

	q.run(slog.Default())

	assert.True(t, ran)
	select {
	case <-q.done:
	default:
		t.Fatal("done not closed")
	}
}
