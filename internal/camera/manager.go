package camera

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/nerrad567/camcore/internal/object"
	"github.com/nerrad567/camcore/internal/signal"
)

// Logger defines the logging interface used by the Manager.
// This allows different logging implementations to be used.
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

// defaultThreadName names the manager thread when Options.ThreadName is empty.
const defaultThreadName = "camera-manager"

// Options configures a Manager.
type Options struct {
	// Enumerator creates the enumeration backend. Required.
	Enumerator EnumeratorFactory

	// Pipelines are the handler factories to match, in order. Nil uses
	// the process-wide registry.
	Pipelines []PipelineHandlerFactory

	// PipelineOrder restricts and orders Pipelines by name. Empty keeps
	// them all in their original order.
	PipelineOrder []string

	// Fatal is called for invariant violations. The default logs the error
	// and panics with an *object.FatalError. If it returns, the offending
	// call is abandoned.
	Fatal func(error)

	// ThreadName names the manager thread in logs.
	ThreadName string

	// Version is reported by Version.
	Version string

	Logger Logger
}

// instance is the live Manager, if any.
var instance atomic.Pointer[Manager]

// Manager owns the camera registry and the thread it is mutated on.
//
// Cameras, Get, GetByDevnum, Start, Stop and Close are safe from any
// goroutine. AddCamera and RemoveCamera must run on the manager thread.
type Manager struct {
	*object.Object

	opts   Options
	logger Logger
	fatal  func(error)
	thread *object.Thread

	mu      sync.RWMutex
	cameras []*Camera
	devnums map[uint64]weak.Pointer[Camera]

	// Owned by the manager thread.
	enumerator Enumerator
	handlers   []PipelineHandler

	added   signal.Signal[*Camera]
	removed signal.Signal[*Camera]

	closeOnce sync.Once
}

// New creates the camera manager. Creating a second Manager while another
// one has not been closed is fatal.
func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	if opts.ThreadName == "" {
		opts.ThreadName = defaultThreadName
	}

	m := &Manager{
		opts:    opts,
		logger:  logger,
		devnums: make(map[uint64]weak.Pointer[Camera]),
	}
	m.fatal = opts.Fatal
	if m.fatal == nil {
		m.fatal = func(err error) {
			logger.Error("fatal camera manager error", "error", err)
			object.Fatal(err)
		}
	}

	if !instance.CompareAndSwap(nil, m) {
		m.fatal(ErrManagerExists)
		return nil
	}

	m.thread = object.NewThread(opts.ThreadName, object.Hooks{
		Init:    m.init,
		Cleanup: m.cleanup,
	})
	m.thread.SetLogger(logger)
	m.Object = object.New()
	m.MoveToThread(m.thread)
	return m
}

// Version returns the version string the manager was created with.
func (m *Manager) Version() string {
	return m.opts.Version
}

// Thread returns the manager thread.
func (m *Manager) Thread() *object.Thread {
	return m.thread
}

// Start starts the manager thread, enumerates devices and matches pipeline
// handlers. It returns once the registry is populated. On failure the
// thread has been fully torn down and the error wraps ErrNoDevice.
func (m *Manager) Start() error {
	if err := m.thread.Start(); err != nil {
		m.logger.Error("camera manager failed to start", "error", err)
		return err
	}
	m.logger.Info("camera manager started",
		"version", m.opts.Version,
		"cameras", len(m.Cameras()),
	)
	return nil
}

// Stop stops the manager thread and waits for it to terminate. The
// registry is emptied. Stop is idempotent.
func (m *Manager) Stop() {
	m.thread.Exit()
	m.thread.Wait()
}

// Close stops the manager and releases the single-instance slot so that a
// new Manager can be created.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.Stop()
		m.Object.Close()
		instance.CompareAndSwap(m, nil)
		m.logger.Info("camera manager closed")
	})
}

// CameraAdded returns the signal emitted on the manager thread after a
// camera has been added to the registry.
func (m *Manager) CameraAdded() *signal.Signal[*Camera] { return &m.added }

// CameraRemoved returns the signal emitted on the manager thread after a
// camera has been removed from the registry.
func (m *Manager) CameraRemoved() *signal.Signal[*Camera] { return &m.removed }

// Cameras returns the registered cameras in registration order.
func (m *Manager) Cameras() []*Camera {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.cameras)
}

// Get returns the camera with the given ID, or nil.
func (m *Manager) Get(id string) *Camera {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.cameras {
		if c.id == id {
			return c
		}
	}
	return nil
}

// GetByDevnum returns the camera backed by the given device number, or nil
// when there is none or it has already been released.
func (m *Manager) GetByDevnum(devnum uint64) *Camera {
	m.mu.RLock()
	wp, ok := m.devnums[devnum]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return wp.Value()
}

// AddCamera registers cam and emits CameraAdded. It must be called on the
// manager thread. A duplicate camera ID is fatal.
func (m *Manager) AddCamera(cam *Camera) {
	if !m.thread.IsCurrent() {
		m.fatal(fmt.Errorf("%w: AddCamera(%q)", object.ErrWrongThread, cam.id))
		return
	}

	m.mu.Lock()
	if slices.ContainsFunc(m.cameras, func(c *Camera) bool { return c.id == cam.id }) {
		m.mu.Unlock()
		m.fatal(fmt.Errorf("%w: %q", ErrDuplicateCamera, cam.id))
		return
	}
	m.cameras = append(m.cameras, cam)
	for _, devnum := range cam.devnums {
		m.devnums[devnum] = weak.Make(cam)
	}
	m.mu.Unlock()

	m.logger.Info("camera added", "camera", cam.id, "devnums", cam.devnums)
	m.added.Emit(cam)
}

// RemoveCamera unregisters cam, marks it disconnected and emits
// CameraRemoved. It must be called on the manager thread. Removing a
// camera that is not registered does nothing.
func (m *Manager) RemoveCamera(cam *Camera) {
	if !m.thread.IsCurrent() {
		m.fatal(fmt.Errorf("%w: RemoveCamera(%q)", object.ErrWrongThread, cam.id))
		return
	}

	m.mu.Lock()
	i := slices.Index(m.cameras, cam)
	if i < 0 {
		m.mu.Unlock()
		m.logger.Debug("removing unregistered camera ignored", "camera", cam.id)
		return
	}
	m.cameras = slices.Delete(m.cameras, i, i+1)
	for devnum, wp := range m.devnums {
		if c := wp.Value(); c == nil || c == cam {
			delete(m.devnums, devnum)
		}
	}
	m.mu.Unlock()

	m.logger.Info("camera removed", "camera", cam.id)
	cam.markDisconnected()
	m.removed.Emit(cam)
}

func (m *Manager) init() error {
	if m.opts.Enumerator == nil {
		return fmt.Errorf("%w: %w", ErrNoDevice, ErrNoEnumerator)
	}

	enum, err := m.opts.Enumerator()
	if err != nil {
		return fmt.Errorf("%w: creating enumerator: %w", ErrNoDevice, err)
	}
	m.enumerator = enum

	if err := enum.Enumerate(); err != nil {
		return fmt.Errorf("%w: enumerating devices: %w", ErrNoDevice, err)
	}

	m.createPipelineHandlers()
	enum.DevicesAdded().Connect(m, object.Slot(m.Object, func(struct{}) {
		m.createPipelineHandlers()
	}))
	return nil
}

// createPipelineHandlers instantiates handlers from every factory, in
// order, matching each factory until a match attempt fails.
func (m *Manager) createPipelineHandlers() {
	all := m.opts.Pipelines
	if all == nil {
		all = PipelineHandlerFactories()
	}
	selected, unknown := orderFactories(all, m.opts.PipelineOrder)
	for _, name := range unknown {
		m.logger.Warn("unknown pipeline handler in configuration", "pipeline", name)
	}

	for _, f := range selected {
		for {
			h := f.Create(m)
			if !h.Match(m.enumerator) {
				release(h)
				break
			}
			m.logger.Debug("pipeline handler matched", "pipeline", f.Name)
			m.handlers = append(m.handlers, h)
		}
	}
}

// cleanup runs on the manager thread after the loop stops, or after a
// failed init.
func (m *Manager) cleanup() {
	if m.enumerator != nil {
		m.enumerator.DevicesAdded().Disconnect(m)
	}

	m.mu.Lock()
	cameras := m.cameras
	m.cameras = nil
	clear(m.devnums)
	m.mu.Unlock()

	for _, c := range cameras {
		if err := c.DeleteLater(); err != nil && !errors.Is(err, object.ErrClosed) {
			c.Close()
		}
	}
	for _, h := range m.handlers {
		release(h)
	}
	m.handlers = nil

	m.thread.DispatchMessages(object.KindDeferredDelete)

	if m.enumerator != nil {
		if err := m.enumerator.Close(); err != nil {
			m.logger.Warn("closing enumerator", "error", err)
		}
		m.enumerator = nil
	}
	m.logger.Debug("camera manager cleaned up", "cameras", len(cameras))
}

// release closes a handler that holds resources.
func release(h PipelineHandler) {
	if c, ok := h.(interface{ Close() }); ok {
		c.Close()
	}
}
