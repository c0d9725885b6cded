package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/okarpenko/autoria-scraper/internal/config"
	"github.com/okarpenko/autoria-scraper/internal/logger"
)

// pastClock pins the scheduler's clock to a moment long gone, making every
// computed fire time already due so triggers arrive back to back.
func pastClock() func() time.Time {
	return func() time.Time {
		return time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	}
}

func TestNextFireLaterToday(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	next := NextFire(now, config.Clock{Hour: 12, Minute: 0})
	assert.Equal(t, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), next)
}

func TestNextFireTomorrowWhenPassed(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	next := NextFire(now, config.Clock{Hour: 12, Minute: 0})
	assert.Equal(t, time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC), next)
}

func TestNextFireExactMomentRollsOver(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	next := NextFire(now, config.Clock{Hour: 12, Minute: 0})
	assert.Equal(t, time.Date(2025, 3, 11, 12, 0, 0, 0, time.UTC), next)
}

func TestNextFireMidnight(t *testing.T) {
	now := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	next := NextFire(now, config.Clock{Hour: 0, Minute: 0})
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), next)
}

func TestSchedulerSkipsTriggerWhileJobRunning(t *testing.T) {
	var invocations atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	s := New([]Job{{
		Name: "blocking",
		At:   config.Clock{Hour: 12},
		Run: func(ctx context.Context) {
			if invocations.Add(1) == 1 {
				started <- struct{}{}
			}
			<-release
		},
	}}, logger.Nop())
	s.now = pastClock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	<-started
	// Triggers keep firing while the first invocation blocks; every one of
	// them must be skipped, not queued.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), invocations.Load())

	close(release)
}

func TestSchedulerStopPreventsFurtherTriggers(t *testing.T) {
	var invocations atomic.Int32
	started := make(chan struct{}, 1)

	s := New([]Job{{
		Name: "counting",
		At:   config.Clock{Hour: 12},
		Run: func(ctx context.Context) {
			if invocations.Add(1) == 1 {
				started <- struct{}{}
			}
		},
	}}, logger.Nop())
	s.now = pastClock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	<-started
	s.Stop()

	// Let any invocation that fired before Stop finish, then verify the
	// count no longer moves.
	time.Sleep(20 * time.Millisecond)
	settled := invocations.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, invocations.Load())
}
