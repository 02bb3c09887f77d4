package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeConflict, "lock is held by another owner")
	ErrLockNotHeld     = errors.New(errors.ErrCodeConflict, "lock not held by this owner")
)

type LockOption func(*lockConfig)

func WithLockTTL(ttl time.Duration) LockOption {
	return func(c *lockConfig) { c.ttl = ttl }
}

func WithRetry(count int, delay time.Duration) LockOption {
	return func(c *lockConfig) {
		c.retryCount = count
		c.retryDelay = delay
	}
}

// WithWatchdog keeps extending the lock every ttl/3 until Unlock.
func WithWatchdog() LockOption {
	return func(c *lockConfig) { c.watchdog = true }
}

type lockConfig struct {
	ttl        time.Duration
	retryDelay time.Duration
	retryCount int
	watchdog   bool
}

// Mutex is a single-owner lock stored as a redis key holding a random token.
// It guards long-running jobs that must not run twice across replicas.
type Mutex struct {
	client *Client
	key    string
	token  string
	cfg    lockConfig
	logger logging.Logger

	stop chan struct{}
	done chan struct{}
}

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`)

// NewMutex returns an unlocked mutex named name.
func (c *Client) NewMutex(name string, opts ...LockOption) *Mutex {
	cfg := lockConfig{
		ttl:        30 * time.Second,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Mutex{
		client: c,
		key:    c.Key("lock:" + name),
		token:  uuid.NewString(),
		cfg:    cfg,
		logger: c.logger.Named("lock").With(logging.String("lock", name)),
	}
}

// Key is the namespaced redis key of the lock.
func (m *Mutex) Key() string {
	return m.key
}

// TryLock makes one attempt plus the configured retries.
func (m *Mutex) TryLock(ctx context.Context) (bool, error) {
	rdb, err := m.client.conn()
	if err != nil {
		return false, err
	}
	for attempt := 0; ; attempt++ {
		ok, err := rdb.SetNX(ctx, m.key, m.token, m.cfg.ttl).Result()
		if err != nil {
			return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to acquire lock")
		}
		if ok {
			if m.cfg.watchdog {
				m.startWatchdog()
			}
			return true, nil
		}
		if attempt >= m.cfg.retryCount {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(m.cfg.retryDelay):
		}
	}
}

// Lock is TryLock that reports contention as ErrLockNotAcquired.
func (m *Mutex) Lock(ctx context.Context) error {
	ok, err := m.TryLock(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockNotAcquired
	}
	return nil
}

func (m *Mutex) Unlock(ctx context.Context) error {
	m.stopWatchdog()
	rdb, err := m.client.conn()
	if err != nil {
		return err
	}
	n, err := unlockScript.Run(ctx, rdb, []string{m.key}, m.token).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock")
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend resets the expiry if this mutex still owns the lock.
func (m *Mutex) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	rdb, err := m.client.conn()
	if err != nil {
		return false, err
	}
	n, err := extendScript.Run(ctx, rdb, []string{m.key}, m.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to extend lock")
	}
	return n == 1, nil
}

func (m *Mutex) startWatchdog() {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	interval := m.cfg.ttl / 3

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				ok, err := m.Extend(ctx, m.cfg.ttl)
				cancel()
				if err != nil {
					m.logger.Error("lock watchdog failed to extend", logging.Err(err))
					return
				}
				if !ok {
					m.logger.Warn("lock watchdog lost ownership")
					return
				}
			}
		}
	}(m.stop, m.done)
}

func (m *Mutex) stopWatchdog() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop, m.done = nil, nil
}
