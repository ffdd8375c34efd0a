// ABOUTME: Lazily created, reference-counted per-zone mutexes.
// ABOUTME: Entries are removed once the last holder releases, bounding table growth.

package engine

import "sync"

type zoneLocks struct {
	mu      sync.Mutex
	entries map[string]*zoneLock
}

type zoneLock struct {
	mu   sync.Mutex
	refs int
}

func newZoneLocks() *zoneLocks {
	return &zoneLocks{entries: make(map[string]*zoneLock)}
}

// acquire blocks until the caller holds the zone's lock. The returned entry
// must be handed back to release.
func (l *zoneLocks) acquire(zone string) *zoneLock {
	l.mu.Lock()
	e, ok := l.entries[zone]
	if !ok {
		e = &zoneLock{}
		l.entries[zone] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return e
}

// release unlocks the zone and drops the table entry when idle.
func (l *zoneLocks) release(zone string, e *zoneLock) {
	e.mu.Unlock()

	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, zone)
	}
	l.mu.Unlock()
}

// size reports the number of live entries.
func (l *zoneLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
