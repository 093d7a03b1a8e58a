package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForVisitsEveryIndexOnce(t *testing.T) {
	configs := map[string]Config{
		"default":    DefaultConfig(),
		"sequential": Sequential(),
		"tiny chunks": {
			Enabled:      true,
			NumWorkers:   7,
			MinChunkSize: 1,
		},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			const n = 1000
			hits := make([]int32, n)
			For(n, cfg, func(i int) {
				atomic.AddInt32(&hits[i], 1)
			})
			for i, h := range hits {
				assert.Equal(t, int32(1), h, "index %d", i)
			}
		})
	}
}

func TestRangeCoversWithoutOverlap(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 3}

	var mu sync.Mutex
	covered := 0
	Range(50, cfg, func(lo, hi int) {
		assert.Less(t, lo, hi)
		mu.Lock()
		covered += hi - lo
		mu.Unlock()
	})
	assert.Equal(t, 50, covered)
}

func TestRangeEmpty(t *testing.T) {
	called := false
	Range(0, DefaultConfig(), func(_, _ int) { called = true })
	assert.False(t, called)
}

func TestSequentialRunsInline(t *testing.T) {
	calls := 0
	Range(100, Sequential(), func(lo, hi int) {
		calls++
		assert.Equal(t, 0, lo)
		assert.Equal(t, 100, hi)
	})
	assert.Equal(t, 1, calls)
}
