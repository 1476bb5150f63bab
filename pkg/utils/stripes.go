package utils

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const DEFAULT_STRIPES = 64

// Stripes is a fixed set of mutexes keyed by string. Two keys share a lock
// only when their hashes collide. Holders may do I/O, so callers bound the
// time they spend holding a stripe with a context deadline instead.
type Stripes struct {
	locks []sync.Mutex
}

func NewStripes(count int) *Stripes {
	if count < 1 {
		count = DEFAULT_STRIPES
	}
	return &Stripes{
		locks: make([]sync.Mutex, count),
	}
}

func (s *Stripes) index(key string) int {
	return int(xxhash.Sum64String(key) % uint64(len(s.locks)))
}

func (s *Stripes) For(key string) *sync.Mutex {
	return &s.locks[s.index(key)]
}

// Lock acquires the lock for key and returns its unlock function.
func (s *Stripes) Lock(key string) func() {
	lock := s.For(key)
	lock.Lock()
	return lock.Unlock
}
