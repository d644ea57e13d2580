// Package locks provides the small Redis coordination pieces: sweep and
// consolidation locks, sweeper heartbeats and sweep metrics. Locks are
// SETNX with a TTL; release and renew only succeed for the holder.
package locks

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

func SweepLockKey() string {
	return "lock:retry_sweep"
}

func ConsolidateLockKey(platform string, intervalHours int) string {
	return "lock:consolidate:" + platform + ":" + strconv.Itoa(intervalHours)
}

func heartbeatKey(instanceID string) string {
	return "sweeper:" + instanceID + ":heartbeat"
}

type Manager struct {
	rdb *redis.Client
}

func NewManager(rdb *redis.Client) *Manager {
	return &Manager{rdb: rdb}
}

// Acquire takes the lock iff nobody holds it.
func (m *Manager) Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	return m.rdb.SetNX(ctx, key, holder, ttl).Result()
}

// Release drops the lock only when holder still owns it.
func (m *Manager) Release(ctx context.Context, key, holder string) (bool, error) {
	script := `
		if redis.call('GET', KEYS[1]) == ARGV[1] then
			return redis.call('DEL', KEYS[1])
		else
			return 0
		end`
	cmd := m.rdb.Eval(ctx, script, []string{key}, holder)
	if err := cmd.Err(); err != nil {
		return false, err
	}
	n, _ := cmd.Int()
	return n == 1, nil
}

// Renew extends the TTL only when holder still owns the lock.
func (m *Manager) Renew(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	script := `
		if redis.call('GET', KEYS[1]) == ARGV[1] then
			return redis.call('PEXPIRE', KEYS[1], ARGV[2])
		else
			return 0
		end`
	cmd := m.rdb.Eval(ctx, script, []string{key}, holder, int(ttl.Milliseconds()))
	if err := cmd.Err(); err != nil {
		return false, err
	}
	n, _ := cmd.Int()
	return n == 1, nil
}

// StartHeartbeat refreshes the instance heartbeat key until ctx ends.
func (m *Manager) StartHeartbeat(ctx context.Context, instanceID string, ttl, interval time.Duration) {
	tkr := time.NewTicker(interval)
	defer tkr.Stop()
	_ = m.rdb.Set(ctx, heartbeatKey(instanceID), "1", ttl).Err()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tkr.C:
			_ = m.rdb.Set(ctx, heartbeatKey(instanceID), "1", ttl).Err()
		}
	}
}

// LiveSweepers counts instances with a fresh heartbeat.
func (m *Manager) LiveSweepers(ctx context.Context) (int, error) {
	var count int
	var cursor uint64
	for {
		keys, next, err := m.rdb.Scan(ctx, cursor, "sweeper:*:heartbeat", 1000).Result()
		if err != nil {
			return 0, err
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// Connect parses the URL, opens a client and verifies it with a ping.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}
