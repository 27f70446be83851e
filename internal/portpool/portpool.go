// Package portpool owns the broker's pool of game ports.
package portpool

import (
	"fmt"
	"sync"

	"github.com/pressplay/arcade/internal/apperr"
	"github.com/rs/zerolog/log"
)

// Allocator hands out ports from a fixed [min, max) range. Acquire and
// Release share one critical section; a port is leased to at most one owner
// at a time. The allocator only tracks free/leased — the session broker is
// responsible for not re-acquiring a port before its previous process has
// confirmed exit, which it guarantees by releasing only from the exit path.
type Allocator struct {
	mu     sync.Mutex
	free   []int
	leased map[int]string // port -> owning session
}

func New(min, max int) (*Allocator, error) {
	if min <= 0 || max <= min {
		return nil, fmt.Errorf("portpool: invalid range [%d, %d)", min, max)
	}
	a := &Allocator{
		free:   make([]int, 0, max-min),
		leased: make(map[int]string),
	}
	for p := min; p < max; p++ {
		a.free = append(a.free, p)
	}
	return a, nil
}

// Acquire leases the next free port to owner.
func (a *Allocator) Acquire(owner string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.free) == 0 {
		return 0, apperr.ErrPoolExhausted
	}
	port := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.leased[port] = owner
	log.Debug().Str("module", "portpool").Int("port", port).Str("owner", owner).Msg("port leased")
	return port, nil
}

// Release returns port to the free set. Releasing a port that is not leased
// is a no-op, which keeps teardown paths idempotent.
func (a *Allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.leased[port]; !ok {
		return
	}
	delete(a.leased, port)
	a.free = append(a.free, port)
	log.Debug().Str("module", "portpool").Int("port", port).Msg("port released")
}

// Leased reports the current owner of port, if any.
func (a *Allocator) Leased(port int) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	owner, ok := a.leased[port]
	return owner, ok
}

// FreeCount is used by status endpoints and tests.
func (a *Allocator) FreeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}
