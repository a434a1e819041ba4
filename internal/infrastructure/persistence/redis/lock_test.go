package redis

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainamp/planner-engine/pkg/logger"
)

// These tests need a live server; set PLANNER_TEST_REDIS_ADDR to run them.
func testLock(t *testing.T) *PlannerLock {
	t.Helper()
	addr := os.Getenv("PLANNER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PLANNER_TEST_REDIS_ADDR not set")
	}

	cfg := DefaultConfig()
	cfg.Addr = addr
	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewPlannerLock(client, time.Second, 5*time.Millisecond, logger.Nop())
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "planner:lock:u1", LockKey("u1"))
}

func TestPlannerLock_SerializesHolders(t *testing.T) {
	lock := testLock(t)
	user := "lock-test-" + time.Now().Format("150405.000000")

	var (
		mu      sync.Mutex
		inside  int
		overlap bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := lock.Lock(context.Background(), user)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			overlap = overlap || inside > 1
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.False(t, overlap)
}

func TestPlannerLock_HonoursContext(t *testing.T) {
	lock := testLock(t)
	user := "lock-ctx-" + time.Now().Format("150405.000000")

	unlock, err := lock.Lock(context.Background(), user)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = lock.Lock(ctx, user)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockTimeout)
}
