package camera

import (
	"slices"
	"sync/atomic"

	"github.com/nerrad567/camcore/internal/object"
	"github.com/nerrad567/camcore/internal/signal"
)

// Properties describes a camera. Values are informational only.
type Properties struct {
	Model    string `json:"model,omitempty"`
	Location string `json:"location,omitempty"`
	Pipeline string `json:"pipeline,omitempty"`
}

// Camera is a registered camera. It is shared between the manager and any
// observer that received it. Its pipeline handler closes it on unplug and
// the manager closes the rest on shutdown.
type Camera struct {
	*object.Object

	id      string
	props   Properties
	devnums []uint64

	disconnected    atomic.Bool
	disconnectedSig signal.Signal[*Camera]
}

// NewCamera creates a camera with the given unique ID and the device
// numbers of the system devices backing it. Call it on the manager thread
// so the camera is bound there.
func NewCamera(id string, devnums []uint64, props Properties) *Camera {
	return &Camera{
		Object:  object.New(),
		id:      id,
		props:   props,
		devnums: slices.Clone(devnums),
	}
}

// ID returns the unique camera ID.
func (c *Camera) ID() string { return c.id }

// Properties returns the camera properties.
func (c *Camera) Properties() Properties { return c.props }

// SystemDevices returns the device numbers backing the camera.
func (c *Camera) SystemDevices() []uint64 { return slices.Clone(c.devnums) }

// Disconnected returns the signal emitted once when the camera is
// unplugged.
func (c *Camera) Disconnected() *signal.Signal[*Camera] { return &c.disconnectedSig }

// IsDisconnected reports whether the camera has been unplugged.
func (c *Camera) IsDisconnected() bool { return c.disconnected.Load() }

func (c *Camera) markDisconnected() {
	if c.disconnected.Swap(true) {
		return
	}
	c.disconnectedSig.Emit(c)
}
