// Package timeoutmgr implements the bilateral request/response timeout
// manager: per-request single-shot timers with extension, cancellation,
// paired (bilateral) timers, and aggregate statistics.
package timeoutmgr

import (
	"fmt"
	"sync"
	"time"
)

// Callback is invoked when a timer elapses without being cancelled or
// extended past its deadline.
type Callback func(id string, d time.Duration)

// Stats is a snapshot of the manager's lifetime counters plus the current
// number of active timers.
type Stats struct {
	TotalRegistered int64
	TotalCancelled  int64
	TotalExpired    int64
	ActiveCount     int64
}

type entry struct {
	timer    *time.Timer
	deadline time.Time
	duration time.Duration
	cb       Callback
	errCb    Callback
}

// Manager arms and tracks per-request timeout timers. All operations are
// safe for concurrent use and linearizable with respect to each other: a
// single mutex guards the entry map and counters, mirroring the mutex +
// map shape the teacher's jsonrpc2.Conn uses for its own pending-call
// registry.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	stats   Stats
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{entries: make(map[string]*entry)}
}

// Start arms a single-shot timer for id that fires cb(id, d) after d
// elapses, unless cancelled or extended first. It always replaces any
// existing timer already armed for id; when it does, it returns a non-fatal
// error describing the replacement so the caller can decide whether that's
// acceptable (the replacement happens either way).
func (m *Manager) Start(id string, d time.Duration, cb Callback, errCb Callback) error {
	m.mu.Lock()
	old, hadExisting := m.entries[id]
	if hadExisting {
		old.timer.Stop()
	} else {
		m.stats.TotalRegistered++
	}
	e := &entry{deadline: time.Now().Add(d), duration: d, cb: cb, errCb: errCb}
	e.timer = time.AfterFunc(d, func() { m.fire(id) })
	m.entries[id] = e
	m.mu.Unlock()

	if hadExisting {
		return fmt.Errorf("timeoutmgr: replaced already-armed timer for %q", id)
	}
	return nil
}

func (m *Manager) fire(id string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.entries, id)
	m.stats.TotalExpired++
	m.mu.Unlock()

	if e.cb != nil {
		e.cb(id, e.duration)
	}
}

// Extend replaces the existing deadline for id with now+delta. It returns
// false if no timer exists for id or it has already fired.
func (m *Manager) Extend(id string, delta time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	e.deadline = time.Now().Add(delta)
	e.duration = delta
	e.timer = time.AfterFunc(delta, func() { m.fire(id) })
	return true
}

// Cancel removes the timer for id. It returns true if and only if a timer
// was present.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(m.entries, id)
	m.stats.TotalCancelled++
	return true
}

// responseSuffix names the paired "response side" timer of a bilateral
// pair, keyed off the same base id.
const responseSuffix = "#resp"

// StartBilateral arms two timers, baseID and baseID+"#resp", sharing the
// same deadline and callback.
func (m *Manager) StartBilateral(baseID string, d time.Duration, cb Callback) {
	_ = m.Start(baseID, d, cb, nil)
	_ = m.Start(baseID+responseSuffix, d, cb, nil)
}

// CancelBilateral cancels both timers of a bilateral pair and returns how
// many were actually present (0, 1, or 2).
func (m *Manager) CancelBilateral(baseID string) int {
	n := 0
	if m.Cancel(baseID) {
		n++
	}
	if m.Cancel(baseID + responseSuffix) {
		n++
	}
	return n
}

// Stats returns a snapshot of the manager's monotonically aggregated
// counters and current active-timer count.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.ActiveCount = int64(len(m.entries))
	return s
}
