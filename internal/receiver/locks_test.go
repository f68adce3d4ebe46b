package receiver

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathLocksSerializeSamePath(t *testing.T) {
	locks := NewPathLocks()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for range 50 {
		wg.Go(func() {
			unlock := locks.Lock("/srv/a.txt")
			defer unlock()
			counter++
		})
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, locks.size())
}

func TestPathLocksMultiplePaths(t *testing.T) {
	locks := NewPathLocks()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			var unlock func()
			if i%2 == 0 {
				unlock = locks.Lock("/srv/a", "/srv/b")
			} else {
				unlock = locks.Lock("/srv/b", "/srv/a", "/srv/a/")
			}
			unlock()
		})
	}
	wg.Wait()

	assert.Zero(t, locks.size())
}
