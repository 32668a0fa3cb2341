package circulation

import (
	"sync"
)

// bookLocks serializes read-evaluate-write sequences per book. Loan creation
// and every queue mutation for the same bookUid take the same mutex, so an
// availability check and the write it guards form one critical section.
type bookLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newBookLocks() *bookLocks {
	return &bookLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

func (b *bookLocks) lock(bookUid string) func() {
	b.mu.Lock()
	m, ok := b.locks[bookUid]
	if !ok {
		m = &sync.Mutex{}
		b.locks[bookUid] = m
	}
	b.mu.Unlock()

	m.Lock()
	return m.Unlock
}
