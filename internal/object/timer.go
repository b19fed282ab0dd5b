package object

import (
	"sync"
	"time"

	"github.com/nerrad567/camcore/internal/signal"
)

var kindTimeout = RegisterMessageKind()

// Timer is a single-shot timer whose Timeout signal is emitted on the
// thread that owns it.
type Timer struct {
	*Object

	timeout signal.Signal[*Timer]

	mu       sync.Mutex
	timer    *time.Timer
	gen      uint64
	running  bool
	deadline time.Time
}

// NewTimer creates a timer bound to the calling worker thread.
func NewTimer() *Timer {
	tm := &Timer{Object: New()}
	tm.SetHandler(tm.handle)
	tm.OnClose(tm.Stop)
	return tm
}

// Timeout returns the signal emitted when the timer expires.
func (tm *Timer) Timeout() *signal.Signal[*Timer] {
	return &tm.timeout
}

// Start arms the timer for d, replacing any pending expiry.
func (tm *Timer) Start(d time.Duration) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.timer != nil {
		tm.timer.Stop()
	}
	tm.gen++
	gen := tm.gen
	tm.running = true
	tm.deadline = time.Now().Add(d)
	tm.timer = time.AfterFunc(d, func() {
		_ = tm.PostMessage(NewCustomMessage(kindTimeout, gen))
	})
}

// Stop disarms the timer. A timeout already queued is discarded.
func (tm *Timer) Stop() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.timer != nil {
		tm.timer.Stop()
		tm.timer = nil
	}
	tm.gen++
	tm.running = false
}

// IsRunning reports whether the timer is armed.
func (tm *Timer) IsRunning() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.running
}

// Deadline returns the expiry time of the armed timer.
func (tm *Timer) Deadline() time.Time {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.deadline
}

func (tm *Timer) handle(msg Message) bool {
	m, ok := msg.(*CustomMessage)
	if !ok || m.Kind() != kindTimeout {
		return false
	}

	tm.mu.Lock()
	current := tm.running && m.Payload.(uint64) == tm.gen
	if current {
		tm.running = false
		tm.timer = nil
	}
	tm.mu.Unlock()

	if current {
		tm.timeout.Emit(tm)
	}
	return true
}
