// Package lock provides per-key mutual exclusion for ledger read-modify-write sequences.
package lock

import (
	"context"
	"sync"
)

// keyMutex is a one-slot semaphore with the number of goroutines holding or waiting on it.
type keyMutex struct {
	slot    chan struct{}
	waiters int
}

// KeyLock serializes work per int64 key. Entries are dropped once nobody
// holds or waits on them, so idle accounts cost nothing.
type KeyLock struct {
	mu    sync.Mutex
	locks map[int64]*keyMutex
}

// NewKeyLock creates a new KeyLock instance.
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[int64]*keyMutex)}
}

// acquire returns the mutex for key, registering the caller as a waiter.
func (kl *KeyLock) acquire(key int64) *keyMutex {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	m, ok := kl.locks[key]
	if !ok {
		m = &keyMutex{slot: make(chan struct{}, 1)}
		kl.locks[key] = m
	}
	m.waiters++
	return m
}

// release unregisters a waiter and drops the entry when it was the last one.
func (kl *KeyLock) release(key int64, m *keyMutex) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	m.waiters--
	if m.waiters == 0 {
		delete(kl.locks, key)
	}
}

// Lock acquires the lock for key, waiting until it is free or ctx is done.
// On ctx expiry the lock is not held and ctx.Err() is returned.
func (kl *KeyLock) Lock(ctx context.Context, key int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := kl.acquire(key)
	select {
	case m.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		kl.release(key, m)
		return ctx.Err()
	}
}

// Unlock releases the lock for key. Unlocking a key that is not locked is a no-op.
func (kl *KeyLock) Unlock(key int64) {
	kl.mu.Lock()
	m, ok := kl.locks[key]
	kl.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-m.slot:
		kl.release(key, m)
	default:
	}
}

// Len returns the number of keys currently tracked.
func (kl *KeyLock) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}
