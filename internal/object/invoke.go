package object

// Invoke posts fn(a) to o's thread. a is copied at post time.
func Invoke[A any](o *Object, fn func(A), a A) error {
	return o.InvokeMethod(func() { fn(a) })
}

// Invoke2 posts fn(a, b) to o's thread. a and b are copied at post time.
func Invoke2[A, B any](o *Object, fn func(A, B), a A, b B) error {
	return o.InvokeMethod(func() { fn(a, b) })
}

// Slot adapts fn for signal.Signal.Connect so that it always runs on o's
// thread. Emissions from that thread (or for an unbound object) call fn
// directly; emissions from any other goroutine post a queued invocation.
//
//	mgr.CameraAdded().Connect(r, object.Slot(r.Object, r.onAdded))
func Slot[T any](o *Object, fn func(T)) func(T) {
	return func(v T) {
		t := o.Thread()
		if t == nil || t.IsCurrent() {
			if !o.Closed() {
				fn(v)
			}
			return
		}
		_ = Invoke(o, fn, v)
	}
}
