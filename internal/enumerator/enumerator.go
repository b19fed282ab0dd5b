package enumerator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"

	"github.com/nerrad567/camcore/internal/camera"
	"github.com/nerrad567/camcore/internal/object"
	"github.com/nerrad567/camcore/internal/signal"
)

// Logger defines the logging interface used by the Enumerator.
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

// Config configures the device-node enumerator.
type Config struct {
	// Dir is the directory scanned for nodes.
	Dir string

	// Patterns are doublestar globs relative to Dir.
	Patterns []string

	// Watch enables hot-plug detection.
	Watch bool

	// CharDevicesOnly skips entries that are not character devices.
	CharDevicesOnly bool
}

// Enumerator finds device nodes and reports hot-plug. It must be created
// on the thread that will use it; every method except Nodes must be called
// there.
type Enumerator struct {
	*object.Object

	cfg    Config
	logger Logger

	mu    sync.RWMutex
	nodes []*Node

	added signal.Signal[struct{}]

	watcher  *fsnotify.Watcher
	watching bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New validates cfg and creates an enumerator bound to the calling thread.
// When cfg.Watch is set the directory watch is registered here, so that
// no node created after Enumerate is missed.
func New(cfg Config, logger Logger) (*Enumerator, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if len(cfg.Patterns) == 0 {
		return nil, ErrNoPatterns
	}
	for _, p := range cfg.Patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, p)
		}
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNoDirectory, cfg.Dir)
	}

	e := &Enumerator{
		Object: object.New(),
		cfg:    cfg,
		logger: logger,
	}

	if cfg.Watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("creating watcher: %w", err)
		}
		if err := w.Add(cfg.Dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watching %s: %w", cfg.Dir, err)
		}
		e.watcher = w
		e.stopCh = make(chan struct{})
		e.doneCh = make(chan struct{})
	}
	return e, nil
}

// Factory returns a camera.EnumeratorFactory creating device-node
// enumerators with cfg.
func Factory(cfg Config, logger Logger) camera.EnumeratorFactory {
	return func() (camera.Enumerator, error) {
		e, err := New(cfg, logger)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

// Enumerate scans the directory and starts the hot-plug watch.
func (e *Enumerator) Enumerate() error {
	fsys := os.DirFS(e.cfg.Dir)
	for _, pattern := range e.cfg.Patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return fmt.Errorf("scanning %s for %q: %w", e.cfg.Dir, pattern, err)
		}
		slices.Sort(matches)
		for _, name := range matches {
			e.addNode(name)
		}
	}

	e.logger.Info("device nodes enumerated", "dir", e.cfg.Dir, "count", len(e.Nodes()))

	if e.watcher != nil && !e.watching {
		e.watching = true
		go e.watch()
	}
	return nil
}

// Search returns the first unclaimed node whose name matches m and claims
// it.
func (e *Enumerator) Search(m camera.DeviceMatch) camera.Device {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, n := range e.nodes {
		if m.Name != "" {
			if ok, _ := doublestar.Match(m.Name, n.name); !ok {
				continue
			}
		}
		if n.claimed.CompareAndSwap(false, true) {
			return n
		}
	}
	return nil
}

// DevicesAdded returns the signal emitted after hot-plugged nodes appear.
func (e *Enumerator) DevicesAdded() *signal.Signal[struct{}] {
	return &e.added
}

// Nodes returns the known nodes. Safe from any goroutine.
func (e *Enumerator) Nodes() []*Node {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.nodes)
}

// Close stops the watch and closes the enumerator's object.
func (e *Enumerator) Close() error {
	var err error
	if e.watcher != nil {
		select {
		case <-e.stopCh:
		default:
			close(e.stopCh)
		}
		err = e.watcher.Close()
		if e.watching {
			<-e.doneCh
		}
		e.watcher = nil
	}
	e.Object.Close()
	return err
}

// addNode records the node at name (relative to Dir). It reports whether
// a new node was added.
func (e *Enumerator) addNode(name string) bool {
	path := filepath.Join(e.cfg.Dir, name)

	e.mu.RLock()
	exists := slices.ContainsFunc(e.nodes, func(n *Node) bool { return n.path == path })
	e.mu.RUnlock()
	if exists {
		return false
	}

	devnum, err := e.devnum(path)
	if err != nil {
		e.logger.Debug("skipping node", "path", path, "reason", err)
		return false
	}

	n := &Node{name: name, path: path, devnum: devnum}
	e.mu.Lock()
	e.nodes = append(e.nodes, n)
	e.mu.Unlock()

	e.logger.Debug("device node added", "path", path, "devnum", devnum)
	return true
}

func (e *Enumerator) removeNode(name string) {
	path := filepath.Join(e.cfg.Dir, name)

	e.mu.Lock()
	i := slices.IndexFunc(e.nodes, func(n *Node) bool { return n.path == path })
	if i < 0 {
		e.mu.Unlock()
		return
	}
	n := e.nodes[i]
	e.nodes = slices.Delete(e.nodes, i, i+1)
	e.mu.Unlock()

	e.logger.Info("device node removed", "path", path)
	n.removed.Emit(n)
}

var errNotCharDevice = errors.New("not a character device")

func (e *Enumerator) devnum(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	if st.Mode&unix.S_IFMT == unix.S_IFCHR {
		return uint64(st.Rdev), nil
	}
	if e.cfg.CharDevicesOnly {
		return 0, errNotCharDevice
	}
	return st.Ino, nil
}

// matches reports whether name (relative to Dir) matches a pattern.
func (e *Enumerator) matches(name string) bool {
	for _, p := range e.cfg.Patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

func (e *Enumerator) watch() {
	defer close(e.doneCh)

	for {
		select {
		case <-e.stopCh:
			return
		case ev, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			e.handleEvent(ev)
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			e.logger.Error("device watcher error", "error", err)
		}
	}
}

// handleEvent runs on the watcher goroutine and forwards relevant events
// to the enumerator thread.
func (e *Enumerator) handleEvent(ev fsnotify.Event) {
	name, err := filepath.Rel(e.cfg.Dir, ev.Name)
	if err != nil || !e.matches(filepath.ToSlash(name)) {
		return
	}
	name = filepath.ToSlash(name)

	var post error
	switch {
	case ev.Has(fsnotify.Create):
		post = e.InvokeMethod(func() {
			if e.addNode(name) {
				e.added.Emit(struct{}{})
			}
		})
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		post = e.InvokeMethod(func() { e.removeNode(name) })
	default:
		return
	}
	if post != nil && !errors.Is(post, object.ErrClosed) {
		e.logger.Warn("dropping device event", "path", ev.Name, "op", ev.Op.String(), "error", post)
	}
}
