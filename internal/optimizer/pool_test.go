package optimizer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	key    string
	closed atomic.Bool
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

type connFactory struct {
	mu    sync.Mutex
	dials int
	conns map[string]*fakeConn
}

func (f *connFactory) dial(ctx context.Context, key string) (*fakeConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.conns == nil {
		f.conns = make(map[string]*fakeConn)
	}
	c := &fakeConn{key: key}
	f.conns[key] = c
	return c, nil
}

func TestPool_ReusesConnection(t *testing.T) {
	f := &connFactory{}
	p, err := NewPool[*fakeConn](2, 0, f.dial, nil, nil)
	require.NoError(t, err)
	defer p.Close()

	a, err := p.Get(context.Background(), "upload")
	require.NoError(t, err)
	b, err := p.Get(context.Background(), "upload")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, f.dials)
}

func TestPool_EvictsLeastRecentlyUsed(t *testing.T) {
	f := &connFactory{}
	p, err := NewPool[*fakeConn](2, 0, f.dial, nil, nil)
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	first, _ := p.Get(ctx, "a")
	_, _ = p.Get(ctx, "b")
	_, _ = p.Get(ctx, "a") // a is now most recent
	_, _ = p.Get(ctx, "c") // evicts b

	assert.Equal(t, 2, p.Len())
	assert.False(t, first.closed.Load())
	assert.True(t, f.conns["b"].closed.Load(), "evicted connection must be closed")
}

func TestPool_PrunesIdle(t *testing.T) {
	f := &connFactory{}
	p, err := NewPool[*fakeConn](4, time.Hour, f.dial, nil, nil)
	require.NoError(t, err)
	defer p.Close()

	now := time.Unix(1700000000, 0)
	p.now = func() time.Time { return now }

	ctx := context.Background()
	stale, _ := p.Get(ctx, "stale")
	now = now.Add(50 * time.Minute)
	fresh, _ := p.Get(ctx, "fresh")
	now = now.Add(20 * time.Minute)

	assert.Equal(t, 1, p.Prune())
	assert.True(t, stale.closed.Load())
	assert.False(t, fresh.closed.Load())
	assert.Equal(t, 1, p.Len())
}

func TestPool_CloseClosesAll(t *testing.T) {
	f := &connFactory{}
	p, err := NewPool[*fakeConn](4, time.Minute, f.dial, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	a, _ := p.Get(ctx, "a")
	b, _ := p.Get(ctx, "b")

	p.Close()
	p.Close()

	assert.True(t, a.closed.Load())
	assert.True(t, b.closed.Load())
	_, err = p.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_DialError(t *testing.T) {
	boom := errors.New("refused")
	p, err := NewPool[*fakeConn](2, 0, func(ctx context.Context, key string) (*fakeConn, error) {
		return nil, boom
	}, nil, nil)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Get(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, p.Len())
}
