// Package mutex 基于 redis 的分布式互斥锁, 多副本共享
package mutex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blues/stream/internal/config"
	"github.com/blues/stream/internal/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "stream:mutex:"

// ErrLocked 等待超时仍未拿到锁
var ErrLocked = errors.New("mutex is held by another owner")

var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Locker 分布式锁
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Guard, error)
}

// RedisLocker SET NX PX 实现的租约锁
type RedisLocker struct {
	client redis.UniversalClient
	wait   time.Duration
	retry  time.Duration
}

// NewRedisClient 创建 redis 客户端并检查连接
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisLocker wait 为获取锁的最长等待时间, 0 表示只尝试一次
func NewRedisLocker(client redis.UniversalClient, wait time.Duration) *RedisLocker {
	return &RedisLocker{client: client, wait: wait, retry: 50 * time.Millisecond}
}

// Acquire 获取锁, 持有期间每 ttl/3 续约一次, 调用方必须 Release
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Guard, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("mutex %s: ttl must be positive", key)
	}

	token := uuid.NewString()
	fullKey := keyPrefix + key
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("mutex %s: %w", key, err)
		}
		if ok {
			return newGuard(l.client, fullKey, token, ttl), nil
		}

		if !time.Now().Before(deadline) {
			logger.Warn("Mutex %s is held, gave up after %v", key, l.wait)
			return nil, ErrLocked
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

// Guard 已持有的锁
type Guard struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration

	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
	lost     atomic.Bool
	released error
}

func newGuard(client redis.UniversalClient, key, token string, ttl time.Duration) *Guard {
	g := &Guard{
		client: client,
		key:    key,
		token:  token,
		ttl:    ttl,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go g.renew()
	return g
}

// renew 续约直到释放或租约丢失
func (g *Guard) renew() {
	defer close(g.done)

	interval := g.ttl / 3
	if interval <= 0 {
		interval = g.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), g.ttl)
			n, err := renewScript.Run(ctx, g.client, []string{g.key}, g.token, g.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				logger.Warn("Mutex %s renewal failed: %v", g.key, err)
				continue
			}
			if n == 0 {
				g.lost.Store(true)
				logger.Error("Mutex %s lease lost", g.key)
				return
			}
		}
	}
}

// Key 锁名
func (g *Guard) Key() string {
	return g.key
}

// Lost 租约是否已被其他持有者取得或过期
func (g *Guard) Lost() bool {
	return g.lost.Load()
}

// Release 释放锁, 可重复调用. 只删除自己持有的 key
func (g *Guard) Release(ctx context.Context) error {
	g.once.Do(func() {
		close(g.stop)
		<-g.done

		_, err := releaseScript.Run(ctx, g.client, []string{g.key}, g.token).Int64()
		if err != nil {
			g.released = fmt.Errorf("mutex %s release: %w", g.key, err)
		}
	})
	return g.released
}

// Abandon 停止续约但不删除 key, 让锁自然过期
func (g *Guard) Abandon() {
	g.once.Do(func() {
		close(g.stop)
		<-g.done
	})
}
