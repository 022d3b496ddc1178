// Package quota implements the sliding-window admission counter that bounds
// how many broken workers a role may replace in a period of time.
package quota

import (
	"sync"
	"time"

	"github.com/cuemby/rolekeeper/pkg/types"
)

// BrokenRecoverQuota admits at most MaxFailedCount recoveries within any
// TimeWindow. A negative MaxFailedCount means unlimited.
type BrokenRecoverQuota struct {
	mu     sync.Mutex
	config types.BrokenRecoverQuotaConfig
	queue  []time.Time
}

// New creates a quota with the given config
func New(config types.BrokenRecoverQuotaConfig) *BrokenRecoverQuota {
	return &BrokenRecoverQuota{config: config}
}

// Require evicts expired admissions and admits now if the window has room.
// A denied call leaves the queue untouched.
func (q *BrokenRecoverQuota) Require(now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.evict(now)
	if q.config.MaxFailedCount < 0 {
		return true
	}
	if len(q.queue) >= int(q.config.MaxFailedCount) {
		return false
	}
	q.queue = append(q.queue, now)
	return true
}

// UpdateConfig swaps the config; admissions already queued age out under the new window
func (q *BrokenRecoverQuota) UpdateConfig(config types.BrokenRecoverQuotaConfig) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.config = config
}

// Config returns the current config
func (q *BrokenRecoverQuota) Config() types.BrokenRecoverQuotaConfig {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.config
}

// Len returns the number of admissions still in the window as of the last call
func (q *BrokenRecoverQuota) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

func (q *BrokenRecoverQuota) evict(now time.Time) {
	window := q.config.Window()
	i := 0
	for i < len(q.queue) && now.Sub(q.queue[i]) > window {
		i++
	}
	if i > 0 {
		q.queue = append(q.queue[:0], q.queue[i:]...)
	}
}
