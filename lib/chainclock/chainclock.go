package chainclock

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Clock supplies the ambient block height. It is externally driven,
// monotonic, and read-only to the auction engine.
type Clock interface {
	Height() uint64
}

// Wall derives the block height from a genesis time and a fixed block
// interval, the way chain epochs map to wall time.
type Wall struct {
	genesis  time.Time
	interval time.Duration
}

// NewWall returns a Wall clock. The interval must be positive and the genesis
// must not be in the future.
func NewWall(genesis time.Time, interval time.Duration) (*Wall, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("block interval must be positive, got %v", interval)
	}
	if genesis.After(time.Now()) {
		return nil, fmt.Errorf("genesis time %v is in the future", genesis)
	}
	return &Wall{genesis: genesis, interval: interval}, nil
}

// Height returns the current block height.
func (c *Wall) Height() uint64 {
	return uint64(time.Since(c.genesis) / c.interval)
}

// Manual is a hand-driven clock for tests.
type Manual struct {
	height uint64
}

// NewManual returns a Manual clock starting at height.
func NewManual(height uint64) *Manual {
	return &Manual{height: height}
}

// Height returns the current block height.
func (c *Manual) Height() uint64 {
	return atomic.LoadUint64(&c.height)
}

// Set moves the clock to height.
func (c *Manual) Set(height uint64) {
	atomic.StoreUint64(&c.height, height)
}

// Advance moves the clock forward by n blocks.
func (c *Manual) Advance(n uint64) {
	atomic.AddUint64(&c.height, n)
}
