package object

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Logger defines the logging interface used by threads.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// State is the lifecycle state of a Thread.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateTerminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Hooks are run on the thread itself.
type Hooks struct {
	// Init runs before the message loop. A non-nil error aborts the thread
	// and is returned from Start.
	Init func() error

	// Cleanup runs after the loop stops, and after a failed Init.
	Cleanup func()
}

// Stats is a snapshot of a thread's message counters.
type Stats struct {
	Posted    uint64
	Delivered uint64
	Dropped   uint64
	Panics    uint64
	Queued    int
}

type envelope struct {
	msg      Message
	receiver *Object
}

// threads maps OS thread ids to running worker threads.
var threads sync.Map

// CurrentThread returns the worker thread the caller runs on, or nil.
func CurrentThread() *Thread {
	v, ok := threads.Load(unix.Gettid())
	if !ok {
		return nil
	}
	return v.(*Thread)
}

// Thread is a goroutine locked to an OS thread that delivers messages to
// the objects bound to it.
//
// PostMessage, Exit, Wait and the accessors are safe from any goroutine.
type Thread struct {
	name   string
	hooks  Hooks
	logger Logger

	state atomic.Int32
	tid   atomic.Int64

	mu    sync.Mutex
	queue []envelope

	wake     chan struct{}
	exitCh   chan struct{}
	exitOnce sync.Once
	done     chan struct{}

	posted    atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64
}

// NewThread creates an idle thread. Messages posted before Start are queued
// and delivered once the loop runs.
func NewThread(name string, hooks Hooks) *Thread {
	return &Thread{
		name:   name,
		hooks:  hooks,
		logger: noopLogger{},
		wake:   make(chan struct{}, 1),
		exitCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger for the thread. Call before Start.
func (t *Thread) SetLogger(logger Logger) {
	t.logger = logger
}

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// State returns the current lifecycle state.
func (t *Thread) State() State { return State(t.state.Load()) }

func (t *Thread) active() bool {
	switch t.State() {
	case StateStarting, StateRunning, StateStopping:
		return true
	}
	return false
}

// ID returns the OS thread id, or 0 when the thread is not running.
func (t *Thread) ID() int { return int(t.tid.Load()) }

// IsCurrent reports whether the caller runs on this thread.
func (t *Thread) IsCurrent() bool {
	tid := t.tid.Load()
	return tid != 0 && tid == int64(unix.Gettid())
}

// Start launches the thread and blocks until Init has completed.
//
// If Init fails, the thread is torn down (Cleanup runs, the goroutine
// exits) before the error is returned. A thread can only be started once.
func (t *Thread) Start() error {
	if !t.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return fmt.Errorf("starting %s: %w", t.name, ErrThreadNotIdle)
	}

	ready := make(chan error, 1)
	go t.run(ready)

	if err := <-ready; err != nil {
		t.Exit()
		t.Wait()
		return fmt.Errorf("starting %s: %w", t.name, err)
	}
	return nil
}

// Exit requests the loop to stop. It is idempotent and safe from any
// goroutine, including the thread itself. Exit on a thread that was never
// started terminates it immediately.
func (t *Thread) Exit() {
	if t.state.CompareAndSwap(int32(StateIdle), int32(StateTerminated)) {
		t.exitOnce.Do(func() { close(t.exitCh) })
		n := t.dropQueue()
		close(t.done)
		t.logger.Debug("idle thread terminated", "thread", t.name, "dropped", n)
		return
	}
	t.exitOnce.Do(func() { close(t.exitCh) })
}

// Wait blocks until the thread has terminated.
func (t *Thread) Wait() {
	<-t.done
}

// WaitTimeout blocks until the thread has terminated or d elapses. It
// reports whether the thread terminated.
func (t *Thread) WaitTimeout(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

// Done returns a channel closed when the thread has terminated.
func (t *Thread) Done() <-chan struct{} {
	return t.done
}

// PostMessage queues msg for receiver, which must be bound to t. It never
// blocks on delivery.
func (t *Thread) PostMessage(msg Message, receiver *Object) error {
	if receiver.Thread() != t {
		return fmt.Errorf("posting to %s: %w", t.name, ErrWrongThread)
	}
	return receiver.PostMessage(msg)
}

// enqueue appends an envelope. Called with the receiver's binding checked
// by Object.PostMessage.
func (t *Thread) enqueue(env envelope) error {
	if t.State() == StateTerminated {
		t.dropped.Add(1)
		return fmt.Errorf("posting to %s: %w", t.name, ErrThreadStopped)
	}
	t.queue = append(t.queue, env)
	t.posted.Add(1)
	env.receiver.pending.Add(1)
	t.signalWake()
	return nil
}

func (t *Thread) signalWake() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// DispatchMessages delivers queued messages of the given kind (all kinds
// for KindAny) on the calling goroutine, until none are left. Messages
// posted during dispatch are delivered too.
//
// It is meant to be called on the thread itself, typically from a Cleanup
// hook once the loop no longer runs.
func (t *Thread) DispatchMessages(kind MessageKind) {
	for {
		env, ok := t.take(kind)
		if !ok {
			return
		}
		t.deliver(env)
	}
}

// RemoveMessages purges every undelivered message for receiver.
func (t *Thread) RemoveMessages(receiver *Object) {
	t.mu.Lock()
	removed := t.takeForLocked(receiver)
	t.mu.Unlock()

	for _, env := range removed {
		t.discard(env)
	}
}

// Stats returns a snapshot of the message counters.
func (t *Thread) Stats() Stats {
	t.mu.Lock()
	queued := len(t.queue)
	t.mu.Unlock()
	return Stats{
		Posted:    t.posted.Load(),
		Delivered: t.delivered.Load(),
		Dropped:   t.dropped.Load(),
		Panics:    t.panics.Load(),
		Queued:    queued,
	}
}

func (t *Thread) run(ready chan<- error) {
	// Never unlocked: the OS thread exits with the goroutine.
	runtime.LockOSThread()

	tid := unix.Gettid()
	t.tid.Store(int64(tid))
	threads.Store(tid, t)
	defer func() {
		threads.Delete(tid)
		t.tid.Store(0)
		t.state.Store(int32(StateTerminated))
		n := t.dropQueue()
		if n > 0 {
			t.logger.Debug("dropped undelivered messages", "thread", t.name, "count", n)
		}
		close(t.done)
	}()

	if err := t.init(); err != nil {
		t.state.Store(int32(StateStopping))
		t.logger.Error("thread init failed", "thread", t.name, "error", err)
		t.cleanup()
		ready <- err
		return
	}

	t.state.CompareAndSwap(int32(StateStarting), int32(StateRunning))
	t.logger.Debug("thread running", "thread", t.name, "tid", tid)
	ready <- nil

	t.loop()

	t.state.Store(int32(StateStopping))
	t.cleanup()
	t.DispatchMessages(KindDeferredDelete)
	t.logger.Debug("thread stopped", "thread", t.name)
}

func (t *Thread) init() (err error) {
	if t.hooks.Init == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*FatalError); ok {
				panic(fe)
			}
			err = fmt.Errorf("init panic: %v", r)
		}
	}()
	return t.hooks.Init()
}

func (t *Thread) cleanup() {
	if t.hooks.Cleanup == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.panics.Add(1)
			t.logger.Error("thread cleanup panic", "thread", t.name, "panic", r)
		}
	}()
	t.hooks.Cleanup()
}

func (t *Thread) loop() {
	for {
		select {
		case <-t.exitCh:
			return
		default:
		}

		env, ok := t.take(KindAny)
		if ok {
			t.deliver(env)
			continue
		}

		select {
		case <-t.wake:
		case <-t.exitCh:
			return
		}
	}
}

func (t *Thread) take(kind MessageKind) (envelope, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, env := range t.queue {
		if kind != KindAny && env.msg.Kind() != kind {
			continue
		}
		copy(t.queue[i:], t.queue[i+1:])
		t.queue[len(t.queue)-1] = envelope{}
		t.queue = t.queue[:len(t.queue)-1]
		return env, true
	}
	return envelope{}, false
}

func (t *Thread) deliver(env envelope) {
	env.receiver.pending.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*FatalError); ok {
				panic(fe)
			}
			t.panics.Add(1)
			t.logger.Error("message handler panic",
				"thread", t.name,
				"kind", env.msg.Kind().String(),
				"panic", r,
			)
		}
	}()
	if env.receiver.deliver(env.msg) {
		t.delivered.Add(1)
	} else {
		t.dropped.Add(1)
	}
}

func (t *Thread) discard(env envelope) {
	env.receiver.pending.Add(-1)
	t.dropped.Add(1)
	if m, ok := env.msg.(*InvokeMessage); ok {
		m.cancel()
	}
}

func (t *Thread) dropQueue() int {
	t.mu.Lock()
	queue := t.queue
	t.queue = nil
	t.mu.Unlock()

	for _, env := range queue {
		t.discard(env)
	}
	return len(queue)
}

// takeForLocked removes and returns the messages queued for receiver, keeping
// their relative order. Caller holds t.mu.
func (t *Thread) takeForLocked(receiver *Object) []envelope {
	kept := t.queue[:0]
	var taken []envelope
	for _, env := range t.queue {
		if env.receiver == receiver {
			taken = append(taken, env)
			continue
		}
		kept = append(kept, env)
	}
	clearTail(t.queue, len(kept))
	t.queue = kept
	return taken
}

// appendMovedLocked queues envelopes transferred from another thread and
// returns them instead when the thread has terminated. Caller holds t.mu.
func (t *Thread) appendMovedLocked(envs []envelope) []envelope {
	if len(envs) == 0 {
		return nil
	}
	if t.State() == StateTerminated {
		return envs
	}
	t.queue = append(t.queue, envs...)
	return nil
}

// lockQueues locks the queues of a and b (b may be nil) in address order
// and returns the matching unlock.
func lockQueues(a, b *Thread) (unlock func()) {
	if b == nil || a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	if uintptr(unsafe.Pointer(b)) < uintptr(unsafe.Pointer(a)) {
		a, b = b, a
	}
	a.mu.Lock()
	b.mu.Lock()
	return func() {
		b.mu.Unlock()
		a.mu.Unlock()
	}
}

func clearTail(s []envelope, from int) {
	for i := from; i < len(s); i++ {
		s[i] = envelope{}
	}
}
