package enumerator

import (
	"sync/atomic"

	"github.com/nerrad567/camcore/internal/camera"
	"github.com/nerrad567/camcore/internal/signal"
)

// Node is a device node found by the Enumerator.
type Node struct {
	name    string
	path    string
	devnum  uint64
	claimed atomic.Bool
	removed signal.Signal[camera.Device]
}

// Name returns the node path relative to the device directory.
func (n *Node) Name() string { return n.name }

// Path returns the absolute node path.
func (n *Node) Path() string { return n.path }

// Devnum returns the device number; for entries that are not character
// devices it is the inode number.
func (n *Node) Devnum() uint64 { return n.devnum }

// Removed returns the signal emitted when the node disappears.
func (n *Node) Removed() *signal.Signal[camera.Device] { return &n.removed }

// Release makes a claimed node available to Search again.
func (n *Node) Release() { n.claimed.Store(false) }

// Claimed reports whether a pipeline handler holds the node.
func (n *Node) Claimed() bool { return n.claimed.Load() }
