package generic

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/camcore/internal/camera"
	"github.com/nerrad567/camcore/internal/enumerator"
)

func TestRegistered(t *testing.T) {
	for _, f := range camera.PipelineHandlerFactories() {
		if f.Name == Name {
			return
		}
	}
	t.Fatalf("factory %q not registered", Name)
}

func TestGenericCamerasFollowNodes(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"video0", "video1"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	m := camera.New(camera.Options{
		Enumerator: enumerator.Factory(enumerator.Config{
			Dir:      dir,
			Patterns: []string{"video*"},
			Watch:    true,
		}, nil),
		Pipelines: []camera.PipelineHandlerFactory{Factory()},
	})
	defer m.Close()

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	cams := m.Cameras()
	if len(cams) != 2 {
		t.Fatalf("len(Cameras()) = %d, want 2", len(cams))
	}
	first := cams[0]
	if first.ID() != filepath.Join(dir, "video0") {
		t.Errorf("ID() = %q, want node path", first.ID())
	}
	if p := first.Properties(); p.Model != "video0" || p.Pipeline != Name {
		t.Errorf("Properties() = %+v", p)
	}
	if m.GetByDevnum(first.SystemDevices()[0]) != first {
		t.Error("camera not indexed by node devnum")
	}

	removed := make(chan string, 1)
	m.CameraRemoved().Connect(nil, func(c *camera.Camera) { removed <- c.ID() })
	added := make(chan string, 1)
	m.CameraAdded().Connect(nil, func(c *camera.Camera) { added <- c.ID() })

	if err := os.Remove(first.ID()); err != nil {
		t.Fatal(err)
	}
	select {
	case id := <-removed:
		if id != first.ID() {
			t.Errorf("removed %q, want %q", id, first.ID())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("camera not removed after node deletion")
	}
	if !first.IsDisconnected() {
		t.Error("removed camera not marked disconnected")
	}
	deadline := time.Now().Add(2 * time.Second)
	for !first.Closed() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !first.Closed() {
		t.Error("removed camera not closed")
	}

	plugged := filepath.Join(dir, "video2")
	if err := os.WriteFile(plugged, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case id := <-added:
		if id != plugged {
			t.Errorf("added %q, want %q", id, plugged)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("camera not added after node creation")
	}
	if len(m.Cameras()) != 2 {
		t.Errorf("len(Cameras()) = %d, want 2", len(m.Cameras()))
	}
}
