package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/brainamp/planner-engine/pkg/logger"
)

const (
	// DefaultLeaseTTL bounds how long a crashed holder can block a user.
	DefaultLeaseTTL = 10 * time.Second

	// DefaultPollInterval is the wait between acquisition attempts.
	DefaultPollInterval = 25 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so a
// holder whose lease expired cannot release the next holder's lease.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// PlannerLock implements planner.Locker with a SET NX PX lease per user.
type PlannerLock struct {
	client redis.UniversalClient
	ttl    time.Duration
	poll   time.Duration
	log    *logger.Logger
}

// NewPlannerLock creates a lease-based Locker. Zero ttl or poll use defaults.
func NewPlannerLock(client redis.UniversalClient, ttl, poll time.Duration, log *logger.Logger) *PlannerLock {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &PlannerLock{
		client: client,
		ttl:    ttl,
		poll:   poll,
		log:    log.With(logger.Component("planner_lock")),
	}
}

// Lock blocks until the user's lease is acquired or ctx ends.
func (l *PlannerLock) Lock(ctx context.Context, userID string) (func(), error) {
	key := LockKey(userID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: acquire lease: %w", err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *PlannerLock) release(key, token string) {
	// The caller's ctx may already be done; release must still happen.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.log.Warn("failed to release planner lease",
			logger.String("key", key),
			logger.Err(err),
		)
	}
}
