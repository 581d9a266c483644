package limiter

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type attempt struct {
	fails        int
	windowStart  time.Time
	blockedUntil time.Time
}

// Memory is a process-local limiter for the in-memory store.
// Idle entries are evicted after max(Window, BlockFor).
type Memory struct {
	mu      sync.Mutex
	cfg     Config
	entries *expirable.LRU[string, attempt]
	now     func() time.Time
}

// NewMemory constructs a limiter tracking at most size (email, ip) pairs.
func NewMemory(cfg Config, size int) *Memory {
	ttl := max(cfg.Window, cfg.BlockFor)
	return &Memory{
		cfg:     cfg,
		entries: expirable.NewLRU[string, attempt](size, nil, ttl),
		now:     time.Now,
	}
}

func memKey(email string, ipHash []byte) string {
	return normEmail(email) + ":" + hex.EncodeToString(ipHash)
}

func (l *Memory) Allow(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.entries.Get(memKey(email, ipHash))
	if !ok {
		return true, 0, nil
	}
	if wait := a.blockedUntil.Sub(l.now()); wait > 0 {
		return false, wait, nil
	}
	return true, 0, nil
}

func (l *Memory) Success(_ context.Context, email string, ipHash []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries.Remove(memKey(email, ipHash))
	return nil
}

func (l *Memory) Failure(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k, now := memKey(email, ipHash), l.now()
	a, _ := l.entries.Get(k)
	if now.Sub(a.windowStart) > l.cfg.Window {
		a = attempt{windowStart: now}
	}
	a.fails++
	if a.fails < l.cfg.MaxFails {
		l.entries.Add(k, a)
		return false, 0, nil
	}
	l.entries.Add(k, attempt{windowStart: now, blockedUntil: now.Add(l.cfg.BlockFor)})
	return true, l.cfg.BlockFor, nil
}
