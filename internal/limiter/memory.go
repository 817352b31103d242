package limiter

import (
	"context"
	"sync"
	"time"
)

type attempt struct {
	fails        int
	lastFail     time.Time
	blockedUntil time.Time
}

// Memory keeps lockout state in process. It mirrors PG for the memory store.
type Memory struct {
	mu       sync.Mutex
	byKey    map[string]*attempt
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

// NewMemory constructs an in-process limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{
		byKey:    map[string]*attempt{},
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		now:      time.Now,
	}
}

func memKey(email string, ipHash []byte) string { return email + "\x00" + string(ipHash) }

// Allow checks whether an active block exists.
func (l *Memory) Allow(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.byKey[memKey(email, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if d := a.blockedUntil.Sub(l.now()); d > 0 {
		return false, d, nil
	}
	return true, 0, nil
}

// Success forgets the pair.
func (l *Memory) Success(_ context.Context, email string, ipHash []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byKey, memKey(email, ipHash))
	return nil
}

// Failure counts a failed attempt. A gap longer than the window restarts the count.
func (l *Memory) Failure(_ context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	k := memKey(email, ipHash)
	a, ok := l.byKey[k]
	if !ok {
		a = &attempt{}
		l.byKey[k] = a
	}
	if ok && now.Sub(a.lastFail) > l.window {
		a.fails = 0
	}
	a.fails++
	a.lastFail = now
	if a.fails >= l.maxFails {
		a.blockedUntil = now.Add(l.blockFor)
		return true, l.blockFor, nil
	}
	return false, 0, nil
}
