// Package signal provides a typed, synchronous publish/subscribe primitive.
//
// A Signal[T] holds an ordered list of (observer, callback) slots. Emit
// calls every slot connected at the time of the call, in connection order,
// on the calling goroutine. Emission never crosses threads by itself; a
// receiver that must run on its own thread wraps its callback with
// object.Slot, which posts a queued invocation instead of running inline.
//
// Signals do not own their observers. An observer that implements Tracker
// is told about every signal it connects to, so that it can disconnect
// from all of them when it is torn down:
//
//	added := &signal.Signal[*Camera]{}
//	added.Connect(obj, func(c *Camera) { ... })
//	...
//	obj.Close() // disconnects from added
//
// Observers are compared with ==, so they must be comparable values
// (normally pointers).
package signal
