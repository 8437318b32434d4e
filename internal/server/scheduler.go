package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/lumina/internal/store"
)

const publishLockKey = "sched:lock:publish"

// Locker guards a tick so only one replica publishes at a time.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLocker implements Locker with SET NX.
type RedisLocker struct {
	Rdb *redis.Client
}

func (l RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.Rdb.SetNX(ctx, key, "1", ttl).Result()
}

func (l RedisLocker) Release(ctx context.Context, key string) error {
	return l.Rdb.Del(ctx, key).Err()
}

// PostPublisher is the store surface the scheduler needs.
type PostPublisher interface {
	PublishDuePosts(ctx context.Context, now time.Time) ([]string, error)
}

var _ PostPublisher = (*store.Store)(nil)

// Scheduler publishes SCHEDULED posts once their time has passed.
type Scheduler struct {
	Store   PostPublisher
	Lock    Locker // nil runs every tick unguarded
	LockTTL time.Duration
	Stop    chan struct{}
	Logger  *log.Logger

	expr *cronexpr.Expression
	now  func() time.Time
}

// NewScheduler parses cronSpec, a standard five-field cron expression.
func NewScheduler(st PostPublisher, lock Locker, cronSpec string, lockTTL time.Duration) (*Scheduler, error) {
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return nil, fmt.Errorf("scheduler cron %q: %w", cronSpec, err)
	}
	return &Scheduler{
		Store:   st,
		Lock:    lock,
		LockTTL: lockTTL,
		Stop:    make(chan struct{}),
		Logger:  log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
		expr:    expr,
		now:     time.Now,
	}, nil
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Run fires on every cron match until ctx is done or Stop is closed.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := s.expr.Next(s.clock())
		if next.IsZero() {
			return fmt.Errorf("scheduler cron has no future match")
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-s.Stop:
			timer.Stop()
			return nil
		case <-timer.C:
			if _, err := s.Tick(ctx); err != nil {
				s.Logger.Printf("tick: %v", err)
			}
		}
	}
}

// Tick publishes everything due now and returns the published ids. It
// returns nil when another replica holds the lock.
func (s *Scheduler) Tick(ctx context.Context) ([]string, error) {
	if s.Lock != nil {
		ttl := s.LockTTL
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		ok, err := s.Lock.Acquire(ctx, publishLockKey, ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return nil, nil
		}
		defer func() { _ = s.Lock.Release(ctx, publishLockKey) }()
	}
	ids, err := s.Store.PublishDuePosts(ctx, s.clock())
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 && s.Logger != nil {
		s.Logger.Printf("published %d scheduled posts", len(ids))
	}
	return ids, nil
}
