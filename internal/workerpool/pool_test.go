package workerpool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGroupRunsAllWork(t *testing.T) {
	pool := New(4)
	var n atomic.Int64
	g := pool.Group()
	for i := 0; i < 100; i++ {
		g.Go(func() { n.Add(1) })
	}
	g.Wait()
	assert.Equal(t, int64(100), n.Load())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := New(2)
	var cur, peak atomic.Int64
	g := pool.Group()
	for i := 0; i < 20; i++ {
		g.Go(func() {
			c := cur.Add(1)
			for {
				p := peak.Load()
				if c <= p || peak.CompareAndSwap(p, c) {
					break
				}
			}
			cur.Add(-1)
		})
	}
	g.Wait()
	assert.LessOrEqual(t, peak.Load(), int64(2))
}
