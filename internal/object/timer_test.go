package object

import (
	"testing"
	"time"
)

func newTimerOn(t *testing.T, th *Thread) *Timer {
	t.Helper()
	var tm *Timer
	helper := boundObject(th)
	defer helper.Close()
	if err := helper.InvokeMethodBlocking(func() { tm = NewTimer() }); err != nil {
		t.Fatalf("creating timer: %v", err)
	}
	t.Cleanup(tm.Close)
	return tm
}

func TestTimerFiresOnOwnerThread(t *testing.T) {
	th := startThread(t, "timer")
	tm := newTimerOn(t, th)

	fired := make(chan *Thread, 1)
	tm.Timeout().Connect(nil, func(*Timer) { fired <- CurrentThread() })

	tm.Start(10 * time.Millisecond)
	if !tm.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	select {
	case got := <-fired:
		if got != th {
			t.Errorf("Timeout emitted on %v, want owner thread", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	flush(t, th)
	if tm.IsRunning() {
		t.Error("IsRunning() = true after expiry")
	}
}

func TestTimerStop(t *testing.T) {
	th := startThread(t, "timer-stop")
	tm := newTimerOn(t, th)

	fired := make(chan struct{}, 1)
	tm.Timeout().Connect(nil, func(*Timer) { fired <- struct{}{} })

	tm.Start(20 * time.Millisecond)
	tm.Stop()

	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(60 * time.Millisecond):
	}
	if tm.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

func TestTimerRestartReplacesDeadline(t *testing.T) {
	th := startThread(t, "timer-restart")
	tm := newTimerOn(t, th)

	fired := make(chan struct{}, 4)
	tm.Timeout().Connect(nil, func(*Timer) { fired <- struct{}{} })

	tm.Start(time.Hour)
	first := tm.Deadline()
	tm.Start(10 * time.Millisecond)
	if !tm.Deadline().Before(first) {
		t.Error("Deadline() not replaced by restart")
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("restarted timer did not fire")
	}
	select {
	case <-fired:
		t.Error("timer fired twice")
	case <-time.After(30 * time.Millisecond):
	}
}
