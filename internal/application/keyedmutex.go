package application

import "sync"

// keyedMutex serializes writers per registry scope key so concurrent
// registrations of the same (url, type) pair cannot interleave their
// read-compare-write cycles. Locks are created on demand and live for the
// process lifetime; the key space is bounded by the number of services.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its release function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
