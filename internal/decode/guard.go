package decode

import (
	"errors"
	"sync"
)

// ErrNoSession is returned when the guard holds no session.
var ErrNoSession = errors.New("no decode session")

// Guard owns the exclusive session handle. The playback loop, the sync
// monitor and the seek coordinator all go through it, so a seek's
// teardown/recreate sequence can never race a frame pull.
//
// Go mutexes are not reentrant: code already holding the lock uses the
// *Locked variants.
type Guard struct {
	mu sync.Mutex
	s  Session
}

// Lock acquires the session lock.
func (g *Guard) Lock() { g.mu.Lock() }

// Unlock releases the session lock.
func (g *Guard) Unlock() { g.mu.Unlock() }

// SessionLocked returns the current session. Caller holds the lock.
func (g *Guard) SessionLocked() Session { return g.s }

// SwapLocked installs s and returns the previous session. Caller holds the lock.
func (g *Guard) SwapLocked(s Session) Session {
	old := g.s
	g.s = s
	return old
}

// Do runs fn with the session under the lock.
func (g *Guard) Do(fn func(Session) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.s == nil {
		return ErrNoSession
	}
	return fn(g.s)
}

// Swap installs s under the lock and returns the previous session.
func (g *Guard) Swap(s Session) Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.SwapLocked(s)
}

// Active reports whether a session is installed.
func (g *Guard) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.s != nil
}

// Position queries the current session's position.
func (g *Guard) Position() (float64, error) {
	var pos float64
	err := g.Do(func(s Session) error {
		p, err := s.Position()
		pos = p
		return err
	})
	return pos, err
}

// SkipFrames pulls and discards up to n frames, stopping early when the
// decoder has nothing ready. It returns how many frames were dropped.
func (g *Guard) SkipFrames(n int) int {
	skipped := 0
	_ = g.Do(func(s Session) error {
		for skipped < n {
			if _, err := s.PullFrame(); err != nil {
				return err
			}
			skipped++
		}
		return nil
	})
	return skipped
}

// Close closes and forgets the current session.
func (g *Guard) Close() error {
	old := g.Swap(nil)
	if old == nil {
		return nil
	}
	return old.Close()
}
