// Package object implements thread-affine objects and the worker threads
// that run them.
//
// Every Object is bound to at most one Thread. All messages posted to an
// object, and every signal slot wrapped with Slot, run on that thread, no
// matter which goroutine posted them. A Thread is one goroutine locked to
// its own OS thread, running a FIFO message loop.
//
// # Architecture
//
//	 any goroutine                       worker OS thread
//	┌──────────────┐   PostMessage    ┌──────────────────────────┐
//	│ InvokeMethod ├──────────────────▶ queue (FIFO, mutex)      │
//	│ Slot(...)    │                  │   │                      │
//	└──────────────┘                  │   ▼                      │
//	                                  │ Object.deliver           │
//	                                  │   handler(msg) ─false──▶ │
//	                                  │   default: run Invoke,   │
//	                                  │   DeferredDelete→Close   │
//	                                  └──────────────────────────┘
//
// # Lifecycle
//
// A Thread moves through Idle, Starting, Running, Stopping and Terminated.
// Start blocks until the Init hook has reported success or failure; a
// failed Init tears the thread down before Start returns. Exit is
// idempotent and Wait blocks until the goroutine has returned, after which
// no further message is delivered.
//
// An Object is closed with Close, which disconnects it from every signal it
// is connected to and purges its undelivered messages. DeleteLater posts a
// DeferredDeleteMessage that closes the object on its own thread.
//
// # Thread identity
//
// Threads identify themselves by OS thread id, so CurrentThread and
// Thread.IsCurrent are only meaningful on Linux.
package object
