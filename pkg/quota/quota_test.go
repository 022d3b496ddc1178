package quota

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/rolekeeper/pkg/types"
)

var epoch = time.Unix(1_700_000_000, 0)

func at(sec int) time.Time {
	return epoch.Add(time.Duration(sec) * time.Second)
}

func TestRequireSlidingWindow(t *testing.T) {
	q := New(types.BrokenRecoverQuotaConfig{MaxFailedCount: 2, TimeWindow: 60})

	assert.True(t, q.Require(at(0)))
	assert.True(t, q.Require(at(1)))
	assert.False(t, q.Require(at(2)))
	assert.Equal(t, 2, q.Len(), "denied call must not be queued")

	// t=0 is evicted, t=1 is still inside the window
	assert.True(t, q.Require(at(61)))
	assert.False(t, q.Require(at(61)))
	assert.Equal(t, 2, q.Len())
}

func TestRequireCases(t *testing.T) {
	tests := []struct {
		name   string
		config types.BrokenRecoverQuotaConfig
		calls  []int
		want   []bool
	}{
		{
			name:   "unlimited",
			config: types.BrokenRecoverQuotaConfig{MaxFailedCount: -1, TimeWindow: 60},
			calls:  []int{0, 0, 0, 0},
			want:   []bool{true, true, true, true},
		},
		{
			name:   "zero never admits",
			config: types.BrokenRecoverQuotaConfig{MaxFailedCount: 0, TimeWindow: 60},
			calls:  []int{0, 100},
			want:   []bool{false, false},
		},
		{
			name:   "entry exactly at window edge stays",
			config: types.BrokenRecoverQuotaConfig{MaxFailedCount: 1, TimeWindow: 60},
			calls:  []int{0, 60, 61},
			want:   []bool{true, false, true},
		},
		{
			name:   "window of one admission",
			config: types.BrokenRecoverQuotaConfig{MaxFailedCount: 1, TimeWindow: 10},
			calls:  []int{0, 5, 11, 12, 30},
			want:   []bool{true, false, true, false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(tt.config)
			got := make([]bool, 0, len(tt.calls))
			for _, c := range tt.calls {
				got = append(got, q.Require(at(c)))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUpdateConfigKeepsQueue(t *testing.T) {
	q := New(types.BrokenRecoverQuotaConfig{MaxFailedCount: 2, TimeWindow: 600})
	assert.True(t, q.Require(at(0)))
	assert.True(t, q.Require(at(10)))
	assert.False(t, q.Require(at(20)))

	// shorter window: both entries age out under the new config
	q.UpdateConfig(types.BrokenRecoverQuotaConfig{MaxFailedCount: 2, TimeWindow: 5})
	assert.Equal(t, int32(5), q.Config().TimeWindow)
	assert.Equal(t, 2, q.Len())
	assert.True(t, q.Require(at(20)))
	assert.Equal(t, 1, q.Len())

	// smaller count: existing entry still counts
	q.UpdateConfig(types.BrokenRecoverQuotaConfig{MaxFailedCount: 1, TimeWindow: 600})
	assert.False(t, q.Require(at(21)))
}

func TestRequireConcurrent(t *testing.T) {
	q := New(types.BrokenRecoverQuotaConfig{MaxFailedCount: 10, TimeWindow: 60})

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.Require(at(0)) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, admitted)
}
