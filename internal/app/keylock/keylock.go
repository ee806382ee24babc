// Package keylock provides mutexes addressed by caller-supplied names.
package keylock

import "sync"

// Map lazily creates one mutex per key. The zero value is ready to use.
type Map struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (m *Map) get(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = make(map[string]*sync.Mutex)
	}
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Lock acquires the mutex for key and returns its unlock function.
// An empty key means no synchronization and returns a no-op.
func (m *Map) Lock(key string) func() {
	if key == "" {
		return func() {}
	}
	l := m.get(key)
	l.Lock()
	return l.Unlock
}

// Do runs fn while holding the mutex for key.
func (m *Map) Do(key string, fn func() error) error {
	unlock := m.Lock(key)
	defer unlock()
	return fn()
}

// Len returns the number of keys seen so far.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
