package limiter

import (
	"context"
	"sync"
	"time"
)

type memKey struct {
	username string
	ip       string
}

func keyOf(k Key) memKey { return memKey{k.Username, string(k.IPHash)} }

type memState struct {
	fails        int
	blockedUntil time.Time
	updatedAt    time.Time
}

// Memory is a process-local limiter with the same window and lockout rules as PG.
// Used with backends that have no shared SQL store.
type Memory struct {
	mu    sync.Mutex
	state map[memKey]*memState
	cfg   Config
	now   func() time.Time
}

// NewMemory constructs an in-memory limiter. Zero policy fields take defaults.
func NewMemory(cfg Config) *Memory {
	return &Memory{state: make(map[memKey]*memState), cfg: cfg.withDefaults(), now: time.Now}
}

func (l *Memory) Allow(_ context.Context, k Key) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.state[keyOf(k)]
	if !ok {
		return true, 0, nil
	}
	if now := l.now(); st.blockedUntil.After(now) {
		return false, st.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

func (l *Memory) Success(_ context.Context, k Key) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.state, keyOf(k))
	return nil
}

func (l *Memory) Failure(_ context.Context, k Key) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	mk := keyOf(k)
	st, ok := l.state[mk]
	switch {
	case !ok:
		st = &memState{fails: 1}
		l.state[mk] = st
	case now.Sub(st.updatedAt) > l.cfg.Window:
		st.fails = 1
	default:
		st.fails++
	}
	st.updatedAt = now

	if st.fails < l.cfg.MaxFails {
		return false, 0, nil
	}
	st.blockedUntil = now.Add(l.cfg.BlockFor)
	return true, l.cfg.BlockFor, nil
}

func (l *Memory) Prune(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, st := range l.state {
		if !st.blockedUntil.After(now) && now.Sub(st.updatedAt) > l.cfg.Window {
			delete(l.state, k)
		}
	}
	return nil
}

// Len reports how many buckets are tracked.
func (l *Memory) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.state)
}
