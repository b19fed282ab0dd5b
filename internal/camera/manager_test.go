package camera

import (
	"errors"
	"fmt"
	"path"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"weak"

	"github.com/nerrad567/camcore/internal/object"
	"github.com/nerrad567/camcore/internal/signal"
)

// fakeDevice is an in-memory Device.
type fakeDevice struct {
	name    string
	devnum  uint64
	claimed bool
	removed signal.Signal[Device]
}

func (d *fakeDevice) Name() string                    { return d.name }
func (d *fakeDevice) Path() string                    { return "/dev/" + d.name }
func (d *fakeDevice) Devnum() uint64                  { return d.devnum }
func (d *fakeDevice) Removed() *signal.Signal[Device] { return &d.removed }
func (d *fakeDevice) Release()                        { d.claimed = false }

// fakeEnumerator is an in-memory Enumerator. It is only touched on the
// manager thread.
type fakeEnumerator struct {
	devices      []*fakeDevice
	added        signal.Signal[struct{}]
	enumerateErr error
	enumerated   bool
	closed       atomic.Bool
}

func newFakeEnumerator(names ...string) *fakeEnumerator {
	e := &fakeEnumerator{}
	for i, name := range names {
		e.devices = append(e.devices, &fakeDevice{name: name, devnum: uint64(81<<8 | i)})
	}
	return e
}

func (e *fakeEnumerator) Enumerate() error {
	e.enumerated = true
	return e.enumerateErr
}

func (e *fakeEnumerator) Search(m DeviceMatch) Device {
	for _, d := range e.devices {
		if d.claimed {
			continue
		}
		if m.Name != "" {
			if ok, _ := path.Match(m.Name, d.name); !ok {
				continue
			}
		}
		d.claimed = true
		return d
	}
	return nil
}

func (e *fakeEnumerator) DevicesAdded() *signal.Signal[struct{}] { return &e.added }

func (e *fakeEnumerator) Close() error {
	e.closed.Store(true)
	return nil
}

// plug adds a device and announces it, as a hot-plug would.
func (e *fakeEnumerator) plug(name string, devnum uint64) {
	e.devices = append(e.devices, &fakeDevice{name: name, devnum: devnum})
	e.added.Emit(struct{}{})
}

// unplug removes a device and fires its Removed signal.
func (e *fakeEnumerator) unplug(name string) {
	for i, d := range e.devices {
		if d.name == name {
			e.devices = append(e.devices[:i], e.devices[i+1:]...)
			d.removed.Emit(d)
			return
		}
	}
}

// testHandler claims one device per Match and creates one camera for it.
type testHandler struct {
	m       *Manager
	pattern string
	name    string
}

func (h *testHandler) Match(e Enumerator) bool {
	d := e.Search(DeviceMatch{Name: h.pattern})
	if d == nil {
		return false
	}
	cam := NewCamera(d.Name(), []uint64{d.Devnum()}, Properties{Pipeline: h.name})
	h.m.AddCamera(cam)
	d.Removed().Connect(cam, func(Device) { h.m.RemoveCamera(cam) })
	return true
}

func testFactory(name, pattern string, created *atomic.Int32) PipelineHandlerFactory {
	return PipelineHandlerFactory{
		Name: name,
		Create: func(m *Manager) PipelineHandler {
			if created != nil {
				created.Add(1)
			}
			return &testHandler{m: m, pattern: pattern, name: name}
		},
	}
}

// fatalRecorder collects fatal errors instead of panicking.
type fatalRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *fatalRecorder) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *fatalRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// newTestManager creates a manager over enum and closes it at the end of
// the test.
func newTestManager(t *testing.T, enum *fakeEnumerator, opts Options) (*Manager, *fatalRecorder) {
	t.Helper()
	rec := &fatalRecorder{}
	opts.Enumerator = func() (Enumerator, error) { return enum, nil }
	if opts.Pipelines == nil {
		opts.Pipelines = []PipelineHandlerFactory{testFactory("test", "", nil)}
	}
	opts.Fatal = rec.record
	m := New(opts)
	if m == nil {
		t.Fatal("New() returned nil")
	}
	t.Cleanup(m.Close)
	return m, rec
}

// onManager runs fn on the manager thread and waits for it.
func onManager(t *testing.T, m *Manager, fn func()) {
	t.Helper()
	if err := m.InvokeMethodBlocking(fn); err != nil {
		t.Fatalf("InvokeMethodBlocking() error = %v", err)
	}
}

func cameraIDs(cams []*Camera) []string {
	ids := make([]string, len(cams))
	for i, c := range cams {
		ids[i] = c.ID()
	}
	return ids
}

func TestStartEnumeratesAndMatches(t *testing.T) {
	enum := newFakeEnumerator("video0", "video1", "video2")
	var created atomic.Int32
	m, rec := newTestManager(t, enum, Options{
		Pipelines: []PipelineHandlerFactory{testFactory("test", "", &created)},
	})

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got := cameraIDs(m.Cameras())
	want := []string{"video0", "video1", "video2"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Cameras() = %v, want %v", got, want)
	}
	// Three matches, then one failed attempt ends the factory.
	if n := created.Load(); n != 4 {
		t.Errorf("handlers created = %d, want 4", n)
	}
	if !enum.enumerated {
		t.Error("Enumerate was not called")
	}
	if errs := rec.all(); len(errs) != 0 {
		t.Errorf("unexpected fatal errors: %v", errs)
	}
}

func TestStartMatchesFactoriesInOrder(t *testing.T) {
	enum := newFakeEnumerator("video0", "media0", "video1")
	m, _ := newTestManager(t, enum, Options{
		Pipelines: []PipelineHandlerFactory{
			testFactory("media", "media*", nil),
			testFactory("video", "video*", nil),
		},
	})

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got := cameraIDs(m.Cameras())
	want := []string{"media0", "video0", "video1"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Cameras() = %v, want %v", got, want)
	}
	if p := m.Get("media0").Properties().Pipeline; p != "media" {
		t.Errorf("media0 pipeline = %q, want media", p)
	}
}

func TestPipelineOrderOption(t *testing.T) {
	enum := newFakeEnumerator("video0", "media0")
	m, _ := newTestManager(t, enum, Options{
		Pipelines: []PipelineHandlerFactory{
			testFactory("media", "media*", nil),
			testFactory("video", "video*", nil),
		},
		PipelineOrder: []string{"video", "missing"},
	})

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got := cameraIDs(m.Cameras())
	if fmt.Sprint(got) != "[video0]" {
		t.Errorf("Cameras() = %v, want [video0]", got)
	}
}

func TestStartEnumerationFailure(t *testing.T) {
	errBackend := errors.New("backend unavailable")
	enum := newFakeEnumerator("video0")
	enum.enumerateErr = errBackend
	m, _ := newTestManager(t, enum, Options{})

	err := m.Start()
	if !errors.Is(err, ErrNoDevice) || !errors.Is(err, errBackend) {
		t.Fatalf("Start() error = %v, want ErrNoDevice wrapping backend error", err)
	}
	if m.Thread().State() != object.StateTerminated {
		t.Errorf("thread state = %v, want terminated", m.Thread().State())
	}
	if !m.Thread().WaitTimeout(10 * time.Millisecond) {
		t.Error("thread still running after failed Start")
	}
	if len(m.Cameras()) != 0 {
		t.Errorf("Cameras() = %v after failed Start, want none", cameraIDs(m.Cameras()))
	}
	if !enum.closed.Load() {
		t.Error("enumerator not closed after failed Start")
	}
	if err := m.InvokeMethod(func() {}); !errors.Is(err, object.ErrThreadStopped) {
		t.Errorf("InvokeMethod() error = %v, want ErrThreadStopped", err)
	}
}

func TestStartEnumeratorFactoryFailure(t *testing.T) {
	errCreate := errors.New("no udev")
	m := New(Options{
		Enumerator: func() (Enumerator, error) { return nil, errCreate },
	})
	defer m.Close()

	err := m.Start()
	if !errors.Is(err, ErrNoDevice) || !errors.Is(err, errCreate) {
		t.Fatalf("Start() error = %v, want ErrNoDevice wrapping %v", err, errCreate)
	}
}

func TestStartWithoutEnumerator(t *testing.T) {
	m := New(Options{})
	defer m.Close()

	if err := m.Start(); !errors.Is(err, ErrNoEnumerator) {
		t.Fatalf("Start() error = %v, want ErrNoEnumerator", err)
	}
}

func TestSecondManagerIsFatal(t *testing.T) {
	first, _ := newTestManager(t, newFakeEnumerator(), Options{})

	func() {
		defer func() {
			r := recover()
			fe, ok := r.(*object.FatalError)
			if !ok || !errors.Is(fe, ErrManagerExists) {
				t.Errorf("recover() = %v, want fatal ErrManagerExists", r)
			}
		}()
		New(Options{})
		t.Error("second New did not fail")
	}()

	first.Close()
	second := New(Options{})
	if second == nil {
		t.Fatal("New() after Close returned nil")
	}
	second.Close()
}

func TestSecondManagerWithFatalHandler(t *testing.T) {
	newTestManager(t, newFakeEnumerator(), Options{})

	rec := &fatalRecorder{}
	if m := New(Options{Fatal: rec.record}); m != nil {
		t.Error("New() returned a second manager")
	}
	errs := rec.all()
	if len(errs) != 1 || !errors.Is(errs[0], ErrManagerExists) {
		t.Errorf("fatal errors = %v, want [ErrManagerExists]", errs)
	}
}

func TestAddCameraDuplicateIsFatal(t *testing.T) {
	m, rec := newTestManager(t, newFakeEnumerator(), Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var added atomic.Int32
	m.CameraAdded().Connect(nil, func(*Camera) { added.Add(1) })

	onManager(t, m, func() {
		m.AddCamera(NewCamera("cam0", nil, Properties{}))
		m.AddCamera(NewCamera("cam0", nil, Properties{}))
	})

	errs := rec.all()
	if len(errs) != 1 || !errors.Is(errs[0], ErrDuplicateCamera) {
		t.Fatalf("fatal errors = %v, want [ErrDuplicateCamera]", errs)
	}
	if n := len(m.Cameras()); n != 1 {
		t.Errorf("len(Cameras()) = %d, want 1", n)
	}
	if added.Load() != 1 {
		t.Errorf("CameraAdded emitted %d times, want 1", added.Load())
	}
}

func TestAddCamerasPreservesOrder(t *testing.T) {
	m, rec := newTestManager(t, newFakeEnumerator(), Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	onManager(t, m, func() {
		m.AddCamera(NewCamera("cam0", nil, Properties{}))
		m.AddCamera(NewCamera("cam1", nil, Properties{}))
	})

	if errs := rec.all(); len(errs) != 0 {
		t.Fatalf("unexpected fatal errors: %v", errs)
	}
	if got := cameraIDs(m.Cameras()); fmt.Sprint(got) != "[cam0 cam1]" {
		t.Errorf("Cameras() = %v, want [cam0 cam1]", got)
	}
}

func TestAddCameraOffManagerThreadIsFatal(t *testing.T) {
	m, rec := newTestManager(t, newFakeEnumerator(), Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	cam := NewCamera("cam0", nil, Properties{})
	m.AddCamera(cam)
	m.RemoveCamera(cam)

	errs := rec.all()
	if len(errs) != 2 || !errors.Is(errs[0], object.ErrWrongThread) || !errors.Is(errs[1], object.ErrWrongThread) {
		t.Errorf("fatal errors = %v, want two ErrWrongThread", errs)
	}
	if len(m.Cameras()) != 0 {
		t.Error("camera registered from the wrong thread")
	}
}

func TestCameraAddedSeesRegisteredCamera(t *testing.T) {
	m, _ := newTestManager(t, newFakeEnumerator(), Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var sawAdded, sawRemoved, onThread bool
	m.CameraAdded().Connect(nil, func(c *Camera) {
		sawAdded = m.Get(c.ID()) == c
		onThread = m.Thread().IsCurrent()
	})
	m.CameraRemoved().Connect(nil, func(c *Camera) {
		sawRemoved = m.Get(c.ID()) != nil
	})

	onManager(t, m, func() {
		cam := NewCamera("cam0", []uint64{42}, Properties{})
		m.AddCamera(cam)
		m.RemoveCamera(cam)
	})

	if !sawAdded {
		t.Error("CameraAdded observer did not find the new camera")
	}
	if !onThread {
		t.Error("CameraAdded not emitted on the manager thread")
	}
	if sawRemoved {
		t.Error("CameraRemoved observer still found the removed camera")
	}
}

func TestRemoveAbsentCameraIsNoop(t *testing.T) {
	m, rec := newTestManager(t, newFakeEnumerator("video0"), Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var removed atomic.Int32
	m.CameraRemoved().Connect(nil, func(*Camera) { removed.Add(1) })

	stranger := NewCamera("ghost", []uint64{7}, Properties{})
	onManager(t, m, func() {
		m.RemoveCamera(stranger)
		m.RemoveCamera(stranger)
	})

	if n := len(m.Cameras()); n != 1 {
		t.Errorf("len(Cameras()) = %d, want 1", n)
	}
	if removed.Load() != 0 {
		t.Errorf("CameraRemoved emitted %d times, want 0", removed.Load())
	}
	if stranger.IsDisconnected() {
		t.Error("absent camera marked disconnected")
	}
	if errs := rec.all(); len(errs) != 0 {
		t.Errorf("unexpected fatal errors: %v", errs)
	}
}

func TestRemoveCameraTwiceEmitsOnce(t *testing.T) {
	m, _ := newTestManager(t, newFakeEnumerator("video0"), Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var removed, disconnected atomic.Int32
	m.CameraRemoved().Connect(nil, func(*Camera) { removed.Add(1) })
	cam := m.Get("video0")
	cam.Disconnected().Connect(nil, func(*Camera) { disconnected.Add(1) })

	onManager(t, m, func() {
		m.RemoveCamera(cam)
		m.RemoveCamera(cam)
	})

	if removed.Load() != 1 || disconnected.Load() != 1 {
		t.Errorf("removed=%d disconnected=%d, want 1 and 1", removed.Load(), disconnected.Load())
	}
	if !cam.IsDisconnected() {
		t.Error("IsDisconnected() = false")
	}
}

func TestGetLookups(t *testing.T) {
	enum := newFakeEnumerator("video0", "video1")
	m, _ := newTestManager(t, enum, Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tests := []struct {
		name   string
		lookup func() *Camera
		want   string
	}{
		{"by id", func() *Camera { return m.Get("video1") }, "video1"},
		{"unknown id", func() *Camera { return m.Get("nope") }, ""},
		{"by devnum", func() *Camera { return m.GetByDevnum(enum.devices[0].devnum) }, "video0"},
		{"unknown devnum", func() *Camera { return m.GetByDevnum(1) }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.lookup()
			got := ""
			if c != nil {
				got = c.ID()
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetByDevnumAfterRemoval(t *testing.T) {
	m, _ := newTestManager(t, newFakeEnumerator(), Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	onManager(t, m, func() {
		cam := NewCamera("cam0", []uint64{100, 101}, Properties{})
		m.AddCamera(cam)
		m.RemoveCamera(cam)
	})

	for _, d := range []uint64{100, 101} {
		if c := m.GetByDevnum(d); c != nil {
			t.Errorf("GetByDevnum(%d) = %q after removal, want nil", d, c.ID())
		}
	}
}

func TestDevnumIndexIsWeak(t *testing.T) {
	m, _ := newTestManager(t, newFakeEnumerator(), Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Index a camera that the registry does not hold.
	onManager(t, m, func() {
		cam := NewCamera("orphan", nil, Properties{})
		m.mu.Lock()
		m.devnums[200] = weak.Make(cam)
		m.mu.Unlock()
	})

	deadline := time.Now().Add(2 * time.Second)
	for m.GetByDevnum(200) != nil {
		if time.Now().After(deadline) {
			t.Fatal("devnum index kept an unreferenced camera alive")
		}
		runtime.GC()
		time.Sleep(time.Millisecond)
	}
}

func TestHotplug(t *testing.T) {
	enum := newFakeEnumerator("video0")
	m, _ := newTestManager(t, enum, Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	added := make(chan string, 1)
	removed := make(chan string, 1)
	m.CameraAdded().Connect(nil, func(c *Camera) { added <- c.ID() })
	m.CameraRemoved().Connect(nil, func(c *Camera) { removed <- c.ID() })

	onManager(t, m, func() { enum.plug("video1", 81<<8|9) })
	select {
	case id := <-added:
		if id != "video1" {
			t.Errorf("added %q, want video1", id)
		}
	case <-time.After(time.Second):
		t.Fatal("hot-plugged device was not matched")
	}
	if m.GetByDevnum(81<<8|9) == nil {
		t.Error("hot-plugged camera not indexed by devnum")
	}

	onManager(t, m, func() { enum.unplug("video0") })
	select {
	case id := <-removed:
		if id != "video0" {
			t.Errorf("removed %q, want video0", id)
		}
	case <-time.After(time.Second):
		t.Fatal("unplugged device was not removed")
	}
	if got := cameraIDs(m.Cameras()); fmt.Sprint(got) != "[video1]" {
		t.Errorf("Cameras() = %v, want [video1]", got)
	}
}

// TestConcurrentGetDuringAddRemove reads the registry from several
// goroutines while the manager thread adds and removes the same camera.
func TestConcurrentGetDuringAddRemove(t *testing.T) {
	m, rec := newTestManager(t, newFakeEnumerator(), Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	stop := make(chan struct{})
	var torn atomic.Int32
	var seen atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if c := m.Get("cam0"); c != nil {
					seen.Add(1)
					if c.ID() != "cam0" || len(c.SystemDevices()) != 1 || c.Properties().Model != "test" {
						torn.Add(1)
					}
				}
				if c := m.GetByDevnum(500); c != nil && c.ID() != "cam0" {
					torn.Add(1)
				}
				for _, c := range m.Cameras() {
					if c == nil || c.ID() == "" {
						torn.Add(1)
					}
				}
			}
		}()
	}

	for i := 0; i < 300; i++ {
		onManager(t, m, func() {
			cam := NewCamera("cam0", []uint64{500}, Properties{Model: "test"})
			m.AddCamera(cam)
			m.RemoveCamera(cam)
			m.AddCamera(cam)
		})
		onManager(t, m, func() {
			if cam := m.Get("cam0"); cam != nil {
				m.RemoveCamera(cam)
			}
		})
	}
	close(stop)
	wg.Wait()

	if torn.Load() != 0 {
		t.Errorf("observed %d inconsistent entries", torn.Load())
	}
	if errs := rec.all(); len(errs) != 0 {
		t.Errorf("unexpected fatal errors: %v", errs)
	}
	t.Logf("readers observed cam0 %d times", seen.Load())
}

func TestStopClearsRegistryAndClosesCameras(t *testing.T) {
	enum := newFakeEnumerator("video0", "video1")
	m, _ := newTestManager(t, enum, Options{})
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cams := m.Cameras()

	m.Stop()
	m.Stop()

	if len(m.Cameras()) != 0 {
		t.Errorf("Cameras() after Stop = %v, want none", cameraIDs(m.Cameras()))
	}
	for _, c := range cams {
		if !c.Closed() {
			t.Errorf("camera %s not closed by cleanup", c.ID())
		}
		if m.GetByDevnum(c.SystemDevices()[0]) != nil {
			t.Errorf("devnum of %s still indexed after Stop", c.ID())
		}
	}
	if !enum.closed.Load() {
		t.Error("enumerator not closed by Stop")
	}
	if enum.added.Len() != 0 {
		t.Errorf("DevicesAdded has %d slots after Stop, want 0", enum.added.Len())
	}
}

func TestStopWithoutStart(t *testing.T) {
	m, _ := newTestManager(t, newFakeEnumerator(), Options{})

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a manager that never started")
	}
}

func TestVersion(t *testing.T) {
	m, _ := newTestManager(t, newFakeEnumerator(), Options{Version: "1.2.3"})
	if m.Version() != "1.2.3" {
		t.Errorf("Version() = %q, want 1.2.3", m.Version())
	}
}
