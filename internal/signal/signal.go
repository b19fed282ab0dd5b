package signal

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Disconnector is the type-erased view of a Signal used by observers to
// sever their connections on teardown.
type Disconnector interface {
	Disconnect(observer any)
}

// Tracker is implemented by observers that need to know which signals they
// are connected to.
//
// TrackSignal is called once per signal, on the first connection of the
// observer. UntrackSignal is called when the last slot of that observer is
// removed from the signal.
//
// The observer argument is the value the connection was made for, which is
// the value to pass back to Disconnect. It differs from the Tracker itself
// when the Tracker is embedded in a larger type.
type Tracker interface {
	TrackSignal(s Disconnector, observer any)
	UntrackSignal(s Disconnector, observer any)
}

type slot[T any] struct {
	observer any
	fn       func(T)
	id       uintptr
	removed  atomic.Bool
}

// methodValues caches, per code pointer, whether the function is a method
// value wrapper.
var methodValues sync.Map

// funcID returns the identity of a non-nil function value.
//
// A method value (o.onAdded) is identified by its code pointer, since each
// evaluation allocates a new closure; the receiver is the observer the
// connection is keyed on. Any other function is identified by its closure,
// so closures built from one literal with different captures differ.
func funcID[T any](fn func(T)) uintptr {
	closure := *(*unsafe.Pointer)(unsafe.Pointer(&fn))
	code := *(*uintptr)(closure)
	if isMethodValue(code) {
		return code
	}
	return uintptr(closure)
}

func isMethodValue(code uintptr) bool {
	if v, ok := methodValues.Load(code); ok {
		return v.(bool)
	}
	f := runtime.FuncForPC(code)
	mv := f != nil && strings.HasSuffix(f.Name(), "-fm")
	methodValues.Store(code, mv)
	return mv
}

// Signal is a typed broadcast point. The zero value is ready to use.
//
// All methods are safe for concurrent use. Callbacks run without the
// internal lock held, so they may connect, disconnect or emit freely.
type Signal[T any] struct {
	mu    sync.Mutex
	slots []*slot[T]
}

// Connect appends fn to the slot list on behalf of observer and returns a
// function that removes exactly this slot.
//
// Connecting the same function twice for the same non-nil observer is a
// no-op; the existing slot's disconnect function is returned. Method values
// are compared by method, so sig.Connect(o, o.onAdded) may be repeated
// freely. Other functions are compared by closure: reconnecting the same
// func variable is a no-op, while two closures built from one literal are
// distinct slots. A nil observer is allowed for anonymous subscriptions,
// which are never deduplicated.
func (s *Signal[T]) Connect(observer any, fn func(T)) (disconnect func()) {
	if fn == nil {
		return func() {}
	}
	id := funcID(fn)

	s.mu.Lock()
	if observer != nil {
		for _, sl := range s.slots {
			if sl.observer == observer && sl.id == id {
				s.mu.Unlock()
				return func() { s.remove(sl) }
			}
		}
	}
	first := observer != nil && !s.hasObserverLocked(observer)
	sl := &slot[T]{observer: observer, fn: fn, id: id}
	s.slots = append(s.slots, sl)
	s.mu.Unlock()

	if first {
		if tr, ok := observer.(Tracker); ok {
			tr.TrackSignal(s, observer)
		}
	}
	return func() { s.remove(sl) }
}

// Disconnect removes every slot connected on behalf of observer. It is safe
// to call when observer has no slots.
func (s *Signal[T]) Disconnect(observer any) {
	if observer == nil {
		return
	}

	s.mu.Lock()
	kept := s.slots[:0:0]
	found := false
	for _, sl := range s.slots {
		if sl.observer == observer {
			sl.removed.Store(true)
			found = true
			continue
		}
		kept = append(kept, sl)
	}
	s.slots = kept
	s.mu.Unlock()

	if found {
		if tr, ok := observer.(Tracker); ok {
			tr.UntrackSignal(s, observer)
		}
	}
}

// DisconnectAll removes every slot.
func (s *Signal[T]) DisconnectAll() {
	s.mu.Lock()
	slots := s.slots
	s.slots = nil
	s.mu.Unlock()

	untracked := make(map[any]struct{})
	for _, sl := range slots {
		sl.removed.Store(true)
		if sl.observer == nil {
			continue
		}
		if _, done := untracked[sl.observer]; done {
			continue
		}
		untracked[sl.observer] = struct{}{}
		if tr, ok := sl.observer.(Tracker); ok {
			tr.UntrackSignal(s, sl.observer)
		}
	}
}

// Len returns the number of connected slots.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Emit calls every connected slot with v, in connection order, on the
// calling goroutine.
//
// The slot list is copied before iteration. Slots connected during
// emission are not called until the next Emit; slots disconnected during
// emission are skipped if their turn has not come yet.
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	slots := make([]*slot[T], len(s.slots))
	copy(slots, s.slots)
	s.mu.Unlock()

	for _, sl := range slots {
		if sl.removed.Load() {
			continue
		}
		sl.fn(v)
	}
}

func (s *Signal[T]) remove(target *slot[T]) {
	s.mu.Lock()
	idx := -1
	for i, sl := range s.slots {
		if sl == target {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	target.removed.Store(true)
	s.slots = append(s.slots[:idx:idx], s.slots[idx+1:]...)
	last := target.observer != nil && !s.hasObserverLocked(target.observer)
	s.mu.Unlock()

	if last {
		if tr, ok := target.observer.(Tracker); ok {
			tr.UntrackSignal(s, target.observer)
		}
	}
}

func (s *Signal[T]) hasObserverLocked(observer any) bool {
	for _, sl := range s.slots {
		if sl.observer == observer {
			return true
		}
	}
	return false
}
