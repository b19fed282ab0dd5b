package generic

import (
	"github.com/nerrad567/camcore/internal/camera"
	"github.com/nerrad567/camcore/internal/object"
)

// Name is the registered pipeline handler name.
const Name = "generic"

func init() {
	camera.RegisterPipelineHandler(Factory())
}

// Factory returns the generic pipeline handler factory.
func Factory() camera.PipelineHandlerFactory {
	return camera.PipelineHandlerFactory{
		Name: Name,
		Create: func(m *camera.Manager) camera.PipelineHandler {
			return New(m)
		},
	}
}

// Handler owns one device node and the camera created for it.
type Handler struct {
	*object.Object

	manager *camera.Manager
	device  camera.Device
	camera  *camera.Camera
}

// New creates a handler for m. It is created on the manager thread.
func New(m *camera.Manager) *Handler {
	return &Handler{
		Object:  object.New(),
		manager: m,
	}
}

// Match claims the next unclaimed node and registers a camera for it. The
// camera ID is the node path.
func (h *Handler) Match(e camera.Enumerator) bool {
	d := e.Search(camera.DeviceMatch{})
	if d == nil {
		return false
	}

	h.device = d
	h.camera = camera.NewCamera(d.Path(), []uint64{d.Devnum()}, camera.Properties{
		Model:    d.Name(),
		Pipeline: Name,
	})
	d.Removed().Connect(h, func(camera.Device) { h.unplugged() })
	h.manager.AddCamera(h.camera)
	return true
}

// Camera returns the camera created by Match, or nil.
func (h *Handler) Camera() *camera.Camera {
	return h.camera
}

func (h *Handler) unplugged() {
	h.manager.RemoveCamera(h.camera)
	h.camera.Close()
	h.Close()
}
