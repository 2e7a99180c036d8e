package statefile

import (
	"bytes"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
)

// LockRegistry maps canonical paths to reentrant mutexes so concurrent
// same-process callers on one logical file serialize correctly while
// distinct files stay independent.
//
// The registry is an explicit object, not a package global; tests and
// components construct isolated instances and share one per persistence
// root.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*ReentrantMutex
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{
		locks: make(map[string]*ReentrantMutex),
	}
}

// Get returns the lock for path, creating it on first use. The same
// canonical path always yields the same lock instance.
func (r *LockRegistry) Get(path string) *ReentrantMutex {
	key := filepath.Clean(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[key]
	if !ok {
		lock = &ReentrantMutex{}
		r.locks[key] = lock
	}
	return lock
}

// Len returns the number of registered locks.
func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// ReentrantMutex is a mutex the owning goroutine may re-acquire without
// deadlocking. Each Lock must be paired with an Unlock.
type ReentrantMutex struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner int64
	depth int
}

// Lock acquires the mutex, blocking until it is free or already held by
// the calling goroutine.
func (m *ReentrantMutex) Lock() {
	gid := goroutineID()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cond == nil {
		m.cond = sync.NewCond(&m.mu)
	}
	if m.owner == gid {
		m.depth++
		return
	}
	for m.depth > 0 {
		m.cond.Wait()
	}
	m.owner = gid
	m.depth = 1
}

// Unlock releases one level of the mutex. Unlocking a mutex not held by
// the calling goroutine panics, matching sync.Mutex semantics.
func (m *ReentrantMutex) Unlock() {
	gid := goroutineID()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.owner != gid || m.depth == 0 {
		panic("statefile: unlock of lock not held by this goroutine")
	}
	m.depth--
	if m.depth == 0 {
		m.owner = 0
		m.cond.Signal()
	}
}

// goroutineID extracts the numeric id of the calling goroutine from its
// stack header ("goroutine N ["). Reentrancy needs a stable caller
// identity and the runtime does not expose one directly.
func goroutineID() int64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i > 0 {
		buf = buf[:i]
	}
	id, _ := strconv.ParseInt(string(buf), 10, 64)
	return id
}
