package scheduler

import "sync"

// keyedMutex is a set of non-blocking per-agent locks.
type keyedMutex struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{held: make(map[int64]struct{})}
}

// TryLock takes the lock for id and reports whether it was free.
func (k *keyedMutex) TryLock(id int64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.held[id]; ok {
		return false
	}
	k.held[id] = struct{}{}
	return true
}

// Unlock releases id.
func (k *keyedMutex) Unlock(id int64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.held, id)
}
