package limiter

import (
	"container/list"
	"sync"
	"time"
)

// Limiter admits units of work against a running total. It's there just so
// we can have a NopeLimiter which does nothing.
type Limiter interface {
	Request(n uint64) bool
	Commit(n uint64)
	Withdraw(n uint64)
}

// RunningTotalLimiter is a variant of a sliding log rate limiter, used to cap
// the bid volume the dispatch front admits per period. The caller first
// requests 'n' tokens, hands the bid to the engine, then either commits the
// tokens (bid accepted) or withdraws them (bid rejected) so they can be
// requested by others. At any time the running total is the tokens committed
// in the period plus those requested but not yet resolved.
type RunningTotalLimiter struct {
	period time.Duration
	limit  uint64
	total  uint64
	log    *list.List // committed tokens, chronological
	mu     sync.Mutex
}

type elem struct {
	ts time.Time
	n  uint64
}

// NewRunningTotalLimiter creates a Limiter which caps the running total in the
// 'period' to 'limit'.
func NewRunningTotalLimiter(period time.Duration, limit uint64) Limiter {
	return &RunningTotalLimiter{period: period, limit: limit, log: list.New()}
}

// Request asks for 'n' tokens and reports whether they were granted. Granted
// tokens must be committed or withdrawn some time later, or the limiter runs
// dry.
func (rl *RunningTotalLimiter) Request(n uint64) bool {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for e := rl.log.Front(); e != nil; {
		item := e.Value.(elem)
		if now.Sub(item.ts) <= rl.period {
			break
		}
		if rl.total < item.n {
			// A double commit could drive the total negative; clamp so it
			// cannot wrap around.
			rl.total = 0
		} else {
			rl.total -= item.n
		}
		evicted := e
		e = e.Next()
		rl.log.Remove(evicted)
	}
	if n > rl.limit || rl.total+n > rl.limit {
		return false
	}
	rl.total += n
	return true
}

// Commit makes the requested n tokens permanent for the configured period.
// It's the caller's responsibility to always request the tokens before
// committing them.
func (rl *RunningTotalLimiter) Commit(n uint64) {
	e := elem{time.Now(), n}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.log.PushBack(e)
}

// Withdraw returns 'n' tokens previously requested.
func (rl *RunningTotalLimiter) Withdraw(n uint64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.total < n {
		panic("total would become negative. are you attempting to withdraw more than once?")
	}
	rl.total -= n
}

// NopeLimiter does no limit.
type NopeLimiter struct{}

// Request always returns true.
func (l NopeLimiter) Request(n uint64) bool { return true }

// Commit does nothing.
func (l NopeLimiter) Commit(n uint64) {}

// Withdraw does nothing.
func (l NopeLimiter) Withdraw(n uint64) {}
