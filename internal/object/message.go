package object

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MessageKind identifies the variant of a Message.
type MessageKind int

// Built-in message kinds. KindAny matches every kind in DispatchMessages.
const (
	KindAny MessageKind = iota
	KindInvoke
	KindThreadMove
	KindDeferredDelete

	// firstCustomKind is the first value handed out by RegisterMessageKind.
	firstCustomKind MessageKind = 1000
)

var nextKind atomic.Int64

func init() {
	nextKind.Store(int64(firstCustomKind))
}

// RegisterMessageKind allocates a process-unique kind for CustomMessage.
func RegisterMessageKind() MessageKind {
	return MessageKind(nextKind.Add(1) - 1)
}

// String returns a readable name for the kind.
func (k MessageKind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindInvoke:
		return "invoke"
	case KindThreadMove:
		return "thread_move"
	case KindDeferredDelete:
		return "deferred_delete"
	default:
		return fmt.Sprintf("custom(%d)", int(k))
	}
}

// Message is a unit of work delivered to an Object on its thread.
//
// The set of variants is closed: InvokeMessage, ThreadMoveMessage,
// DeferredDeleteMessage and CustomMessage. Handlers switch on the concrete
// type and return false for anything they do not recognise, which forwards
// the message to the default handling.
type Message interface {
	Kind() MessageKind
	message()
}

// InvokeMessage carries a bound call to run on the receiver's thread.
type InvokeMessage struct {
	fn   func()
	done chan struct{}
	once sync.Once
	ran  bool
}

// NewInvokeMessage wraps fn. If blocking is set, Done is closed once the
// call has run or the message has been purged.
func NewInvokeMessage(fn func(), blocking bool) *InvokeMessage {
	m := &InvokeMessage{fn: fn}
	if blocking {
		m.done = make(chan struct{})
	}
	return m
}

// Kind returns KindInvoke.
func (*InvokeMessage) Kind() MessageKind { return KindInvoke }
func (*InvokeMessage) message()          {}

// Invoke runs the bound call. It runs at most once.
func (m *InvokeMessage) Invoke() {
	m.once.Do(func() {
		defer m.finish()
		m.ran = true
		m.fn()
	})
}

// Done returns a channel closed after the call completes or is cancelled.
// It is nil for non-blocking messages.
func (m *InvokeMessage) Done() <-chan struct{} {
	return m.done
}

func (m *InvokeMessage) cancel() {
	m.once.Do(m.finish)
}

func (m *InvokeMessage) finish() {
	if m.done != nil {
		close(m.done)
	}
}

// ThreadMoveMessage is delivered synchronously to an object right before it
// moves from one thread to another.
type ThreadMoveMessage struct {
	From *Thread
	To   *Thread
}

// Kind returns KindThreadMove.
func (*ThreadMoveMessage) Kind() MessageKind { return KindThreadMove }
func (*ThreadMoveMessage) message()          {}

// DeferredDeleteMessage asks the receiver to close itself on its own thread.
type DeferredDeleteMessage struct{}

// Kind returns KindDeferredDelete.
func (*DeferredDeleteMessage) Kind() MessageKind { return KindDeferredDelete }
func (*DeferredDeleteMessage) message()          {}

// CustomMessage carries an application payload under a registered kind.
type CustomMessage struct {
	kind    MessageKind
	Payload any
}

// NewCustomMessage creates a message of a kind obtained from
// RegisterMessageKind.
func NewCustomMessage(kind MessageKind, payload any) *CustomMessage {
	return &CustomMessage{kind: kind, Payload: payload}
}

// Kind returns the registered kind.
func (m *CustomMessage) Kind() MessageKind { return m.kind }
func (*CustomMessage) message()            {}
