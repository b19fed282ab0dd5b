package hotplug

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/camcore/internal/camera"
	"github.com/nerrad567/camcore/internal/object"
	"github.com/nerrad567/camcore/internal/signal"
)

// Logger is the logging interface used by the relay.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

const (
	defaultThreadName  = "hotplug-relay"
	defaultSinkTimeout = 5 * time.Second
)

// ErrStarted is returned when sinks are added to a running relay.
var ErrStarted = errors.New("hotplug: relay already started")

// Source is the subset of *camera.Manager the relay observes.
type Source interface {
	CameraAdded() *signal.Signal[*camera.Camera]
	CameraRemoved() *signal.Signal[*camera.Camera]
}

// Options configures a Relay.
type Options struct {
	ThreadName string

	// SinkTimeout bounds each Sink.Handle call.
	SinkTimeout time.Duration

	// StatsInterval is the sampling period for StatsSinks. Zero disables
	// sampling.
	StatsInterval time.Duration

	// Watch lists the threads whose counters are sampled.
	Watch []*object.Thread

	Logger Logger
}

// Relay carries registry changes from the manager thread to slow adapters
// (database, broker, websocket clients) running on a thread of its own, so
// that a stalled adapter never delays device handling.
type Relay struct {
	*object.Object

	opts   Options
	logger Logger
	thread *object.Thread

	mu          sync.Mutex
	started     bool
	sinks       []Sink
	statsSinks  []StatsSink
	disconnects []func()

	// Owned by the relay thread.
	sampler *object.Timer
	ctx     context.Context
	cancel  context.CancelFunc

	relayed atomic.Uint64
	failed  atomic.Uint64
}

// NewRelay creates a relay observing src. Events emitted before Start are
// queued and delivered once the relay runs.
func NewRelay(src Source, opts Options) *Relay {
	if opts.ThreadName == "" {
		opts.ThreadName = defaultThreadName
	}
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = defaultSinkTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	r := &Relay{
		opts:   opts,
		logger: logger,
	}
	r.thread = object.NewThread(opts.ThreadName, object.Hooks{
		Init:    r.init,
		Cleanup: r.cleanup,
	})
	r.thread.SetLogger(logger)
	r.Object = object.New()
	r.MoveToThread(r.thread)

	// The event is built on the emitting thread; only the fan-out is queued.
	deliver := object.Slot(r.Object, r.dispatch)
	r.disconnects = []func(){
		src.CameraAdded().Connect(r, func(cam *camera.Camera) {
			deliver(NewEvent(EventAdded, cam))
		}),
		src.CameraRemoved().Connect(r, func(cam *camera.Camera) {
			deliver(NewEvent(EventRemoved, cam))
		}),
	}
	return r
}

// AddSink registers s. Sinks must be added before Start.
func (r *Relay) AddSink(s Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrStarted
	}
	r.sinks = append(r.sinks, s)
	return nil
}

// AddStatsSink registers s for periodic thread counters. Stats sinks must
// be added before Start.
func (r *Relay) AddStatsSink(s StatsSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrStarted
	}
	r.statsSinks = append(r.statsSinks, s)
	return nil
}

// Thread returns the relay thread.
func (r *Relay) Thread() *object.Thread {
	return r.thread
}

// Start starts the relay thread.
func (r *Relay) Start() error {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
	return r.thread.Start()
}

// Stop disconnects from the source, delivers the events already queued
// and stops the relay thread. Stop is idempotent.
func (r *Relay) Stop() {
	r.disconnect()
	r.thread.Exit()
	r.thread.Wait()
	r.Object.Close()
}

// Relayed returns how many events were handed to the sinks.
func (r *Relay) Relayed() uint64 { return r.relayed.Load() }

// Failed returns how many sink calls returned an error.
func (r *Relay) Failed() uint64 { return r.failed.Load() }

func (r *Relay) disconnect() {
	r.mu.Lock()
	fns := r.disconnects
	r.disconnects = nil
	r.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (r *Relay) init() error {
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.mu.Lock()
	sample := len(r.statsSinks) > 0 && r.opts.StatsInterval > 0
	r.mu.Unlock()

	if sample {
		r.sampler = object.NewTimer()
		r.sampler.Timeout().Connect(r, func(*object.Timer) { r.sample() })
		r.sampler.Start(r.opts.StatsInterval)
	}
	r.logger.Debug("hotplug relay running", "sinks", len(r.sinks), "sampling", sample)
	return nil
}

func (r *Relay) cleanup() {
	if r.sampler != nil {
		r.sampler.Close()
	}
	// Flush what the manager emitted before Stop.
	r.thread.DispatchMessages(object.KindInvoke)
	r.cancel()
}

func (r *Relay) dispatch(ev Event) {
	r.relayed.Add(1)
	for _, s := range r.sinks {
		ctx, cancel := context.WithTimeout(r.ctx, r.opts.SinkTimeout)
		err := s.Handle(ctx, ev)
		cancel()
		if err != nil {
			r.failed.Add(1)
			r.logger.Warn("hotplug sink failed",
				"event", ev.Type,
				"camera", ev.CameraID,
				"error", err,
			)
		}
	}
}

func (r *Relay) sample() {
	for _, t := range r.opts.Watch {
		st := t.Stats()
		for _, s := range r.statsSinks {
			ctx, cancel := context.WithTimeout(r.ctx, r.opts.SinkTimeout)
			if err := s.RecordThreadStats(ctx, t.Name(), st); err != nil {
				r.logger.Warn("thread stats sink failed", "thread", t.Name(), "error", err)
			}
			cancel()
		}
	}
	r.sampler.Start(r.opts.StatsInterval)
}
