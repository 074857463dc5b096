package timeoutmgr_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/nalgeon/be"

	"github.com/janusrpc/janus/internal/timeoutmgr"
)

func TestStartFiresOnceWithinWindow(t *testing.T) {
	m := timeoutmgr.New()
	var fired int32
	_ = m.Start("cmd-1", 30*time.Millisecond, func(id string, d time.Duration) {
		atomic.AddInt32(&fired, 1)
	}, nil)

	time.Sleep(120 * time.Millisecond)
	be.Equal(t, atomic.LoadInt32(&fired), int32(1))
	be.Equal(t, m.Stats().TotalExpired, int64(1))
}

func TestCancelPreventsFiring(t *testing.T) {
	m := timeoutmgr.New()
	var fired int32
	_ = m.Start("cmd-2", 30*time.Millisecond, func(id string, d time.Duration) {
		atomic.AddInt32(&fired, 1)
	}, nil)

	be.True(t, m.Cancel("cmd-2"))
	time.Sleep(80 * time.Millisecond)
	be.Equal(t, atomic.LoadInt32(&fired), int32(0))
}

func TestCancelUnknownReturnsFalse(t *testing.T) {
	m := timeoutmgr.New()
	be.True(t, !m.Cancel("never-armed"))
}

func TestExtendDelaysFiring(t *testing.T) {
	m := timeoutmgr.New()
	var fired int32
	_ = m.Start("cmd-3", 50*time.Millisecond, func(id string, d time.Duration) {
		atomic.AddInt32(&fired, 1)
	}, nil)

	time.Sleep(25 * time.Millisecond)
	be.True(t, m.Extend("cmd-3", 100*time.Millisecond))

	time.Sleep(50 * time.Millisecond)
	be.Equal(t, atomic.LoadInt32(&fired), int32(0))

	time.Sleep(100 * time.Millisecond)
	be.Equal(t, atomic.LoadInt32(&fired), int32(1))
}

func TestExtendUnknownReturnsFalse(t *testing.T) {
	m := timeoutmgr.New()
	be.True(t, !m.Extend("nope", time.Second))
}

func TestStartReplacingArmedTimerReturnsError(t *testing.T) {
	m := timeoutmgr.New()
	err := m.Start("cmd-4", time.Second, func(string, time.Duration) {}, nil)
	be.Err(t, err, nil)
	err = m.Start("cmd-4", time.Second, func(string, time.Duration) {}, nil)
	be.True(t, err != nil)
}

func TestBilateralStartAndCancel(t *testing.T) {
	m := timeoutmgr.New()
	m.StartBilateral("base", time.Second, func(string, time.Duration) {})
	be.Equal(t, m.Stats().ActiveCount, int64(2))

	n := m.CancelBilateral("base")
	be.Equal(t, n, 2)
	be.Equal(t, m.Stats().ActiveCount, int64(0))
}

func TestBilateralExpiration(t *testing.T) {
	m := timeoutmgr.New()
	var fired int32
	m.StartBilateral("base2", 50*time.Millisecond, func(string, time.Duration) {
		atomic.AddInt32(&fired, 1)
	})
	be.Equal(t, m.Stats().ActiveCount, int64(2))

	time.Sleep(150 * time.Millisecond)
	be.Equal(t, atomic.LoadInt32(&fired), int32(2))
	be.Equal(t, m.Stats().ActiveCount, int64(0))
	be.Equal(t, m.Stats().TotalExpired, int64(2))
}
