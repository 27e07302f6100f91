package runner

import (
	"sync"
	"sync/atomic"
)

// chain serializes execution attempts in the order they were enqueued.
// Each link waits for its predecessor to settle before it starts, so at most
// one attempt runs at a time no matter how many are requested concurrently.
type chain struct {
	mu    sync.Mutex
	tail  chan struct{}
	depth atomic.Int64
}

func newChain() *chain {
	settled := make(chan struct{})
	close(settled)
	return &chain{tail: settled}
}

// enqueue reserves the next position. The caller must wait on prev before
// executing and must call release exactly once when its attempt settles,
// whether or not it actually executed.
func (c *chain) enqueue() (prev <-chan struct{}, release func()) {
	done := make(chan struct{})

	c.mu.Lock()
	prev = c.tail
	c.tail = done
	c.mu.Unlock()

	c.depth.Add(1)
	var once sync.Once
	return prev, func() {
		once.Do(func() {
			c.depth.Add(-1)
			close(done)
		})
	}
}

// Depth returns the number of attempts queued or executing.
func (c *chain) Depth() int {
	return int(c.depth.Load())
}
