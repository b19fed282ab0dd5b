package object

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/camcore/internal/signal"
)

type trackedSignal struct {
	sig      signal.Disconnector
	observer any
}

// Object is a thread-affine message receiver.
//
// Embed *Object in a type to give it a thread, a message hook and signal
// tracking. All delivery for an object happens on the thread it is bound
// to. Close must be called before the object is discarded.
type Object struct {
	thread  atomic.Pointer[Thread]
	pending atomic.Int64
	closed  atomic.Bool

	mu      sync.Mutex
	signals []trackedSignal
	handler func(Message) bool
	onClose []func()
}

// New creates an object bound to the calling worker thread, or unbound
// when the caller is not a worker thread.
func New() *Object {
	o := &Object{}
	o.thread.Store(CurrentThread())
	return o
}

// Thread returns the owning thread, or nil when unbound.
func (o *Object) Thread() *Thread {
	return o.thread.Load()
}

// OnOwnerThread reports whether the caller runs on the owning thread.
func (o *Object) OnOwnerThread() bool {
	t := o.thread.Load()
	return t != nil && t.IsCurrent()
}

// SetHandler installs the message hook. It runs on the owning thread and
// returns true when it consumed the message; false forwards the message to
// the default handling.
func (o *Object) SetHandler(h func(Message) bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handler = h
}

// OnClose registers fn to run once when the object is closed.
func (o *Object) OnClose(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onClose = append(o.onClose, fn)
}

// PostMessage queues msg on the owning thread and returns immediately.
func (o *Object) PostMessage(msg Message) error {
	if o.closed.Load() {
		return ErrClosed
	}
	for {
		t := o.thread.Load()
		if t == nil {
			return ErrNoThread
		}
		t.mu.Lock()
		if o.thread.Load() != t {
			// Moved between the load and the lock.
			t.mu.Unlock()
			continue
		}
		err := t.enqueue(envelope{msg: msg, receiver: o})
		t.mu.Unlock()
		return err
	}
}

// InvokeMethod posts fn to run on the owning thread. Values captured by fn
// are fixed at post time; pointers must stay valid until delivery.
func (o *Object) InvokeMethod(fn func()) error {
	return o.PostMessage(NewInvokeMessage(fn, false))
}

// InvokeMethodBlocking runs fn on the owning thread and waits for it to
// return. When the caller already runs there, fn is called inline.
//
// It returns ErrCancelled if the message was purged before delivery. It
// blocks until the thread is started when posted to an idle thread.
func (o *Object) InvokeMethodBlocking(fn func()) error {
	t := o.thread.Load()
	if t == nil {
		return ErrNoThread
	}
	if t.IsCurrent() {
		if o.closed.Load() {
			return ErrClosed
		}
		fn()
		return nil
	}

	m := NewInvokeMessage(fn, true)
	if err := o.PostMessage(m); err != nil {
		return err
	}
	<-m.Done()
	if !m.ran {
		return ErrCancelled
	}
	return nil
}

// DeleteLater posts a DeferredDeleteMessage; the object closes itself when
// it is delivered.
func (o *Object) DeleteLater() error {
	return o.PostMessage(&DeferredDeleteMessage{})
}

// MoveToThread rebinds the object to t.
//
// It must be called from the owning thread, unless the object is unbound
// or its thread is not running; otherwise it calls Fatal with
// ErrWrongThread. A
// ThreadMoveMessage is delivered in place before the move, and messages
// already queued for the object follow it to t.
func (o *Object) MoveToThread(t *Thread) {
	cur := o.thread.Load()
	if cur == t || o.closed.Load() {
		return
	}
	if cur != nil && cur.active() && !cur.IsCurrent() {
		Fatal(fmt.Errorf("%w: moving object owned by %s", ErrWrongThread, cur.name))
	}

	o.dispatch(&ThreadMoveMessage{From: cur, To: t})

	if cur == nil {
		o.thread.Store(t)
		return
	}

	// Both queues stay locked until the moved messages are in place, so a
	// poster that sees the new binding queues behind them.
	unlock := lockQueues(cur, t)
	moved := cur.takeForLocked(o)
	o.thread.Store(t)
	if t == nil {
		unlock()
		for _, env := range moved {
			cur.discard(env)
		}
		return
	}
	dropped := t.appendMovedLocked(moved)
	unlock()

	for _, env := range dropped {
		t.discard(env)
	}
	if len(moved) > 0 && len(dropped) == 0 {
		t.signalWake()
	}
}

// PendingMessages returns the number of queued, undelivered messages.
func (o *Object) PendingMessages() int {
	return int(o.pending.Load())
}

// SignalCount returns the number of signals the object is connected to.
func (o *Object) SignalCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.signals)
}

// Closed reports whether Close has been called.
func (o *Object) Closed() bool {
	return o.closed.Load()
}

// Close disconnects the object from every signal and purges its queued
// messages. Nothing is delivered to the object afterwards. Close is
// idempotent.
func (o *Object) Close() {
	if o.closed.Swap(true) {
		return
	}

	o.mu.Lock()
	signals := o.signals
	o.signals = nil
	hooks := o.onClose
	o.onClose = nil
	o.mu.Unlock()

	for _, ts := range signals {
		ts.sig.Disconnect(ts.observer)
	}
	if o.pending.Load() > 0 {
		if t := o.thread.Load(); t != nil {
			t.RemoveMessages(o)
		}
	}
	for _, fn := range hooks {
		fn()
	}
}

// TrackSignal implements signal.Tracker.
func (o *Object) TrackSignal(s signal.Disconnector, observer any) {
	o.mu.Lock()
	if o.closed.Load() {
		o.mu.Unlock()
		s.Disconnect(observer)
		return
	}
	for _, ts := range o.signals {
		if ts.sig == s && ts.observer == observer {
			o.mu.Unlock()
			return
		}
	}
	o.signals = append(o.signals, trackedSignal{sig: s, observer: observer})
	o.mu.Unlock()
}

// UntrackSignal implements signal.Tracker.
func (o *Object) UntrackSignal(s signal.Disconnector, observer any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, ts := range o.signals {
		if ts.sig == s && ts.observer == observer {
			o.signals = append(o.signals[:i], o.signals[i+1:]...)
			return
		}
	}
}

// deliver runs msg on the owning thread. It reports false when the
// message was dropped because the object is closed.
func (o *Object) deliver(msg Message) bool {
	if o.closed.Load() {
		if m, ok := msg.(*InvokeMessage); ok {
			m.cancel()
		}
		return false
	}
	o.dispatch(msg)
	return true
}

func (o *Object) dispatch(msg Message) {
	o.mu.Lock()
	h := o.handler
	o.mu.Unlock()

	if h != nil && h(msg) {
		return
	}
	o.defaultMessage(msg)
}

func (o *Object) defaultMessage(msg Message) {
	switch m := msg.(type) {
	case *InvokeMessage:
		m.Invoke()
	case *DeferredDeleteMessage:
		o.Close()
	}
}
