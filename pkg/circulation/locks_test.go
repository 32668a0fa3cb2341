package circulation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBookLocksMutualExclusion(t *testing.T) {
	locks := newBookLocks()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("book-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestBookLocksIndependentPerBook(t *testing.T) {
	locks := newBookLocks()

	unlockA := locks.lock("book-a")
	// a different book must not block
	done := make(chan struct{})
	go func() {
		unlockB := locks.lock("book-b")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}

func TestBookLocksSameMutexForSameBook(t *testing.T) {
	locks := newBookLocks()

	unlock := locks.lock("book-a")
	acquired := make(chan struct{})
	go func() {
		u := locks.lock("book-a")
		u()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first still held")
	default:
	}

	unlock()
	<-acquired
}
