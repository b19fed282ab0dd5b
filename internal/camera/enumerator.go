package camera

import "github.com/nerrad567/camcore/internal/signal"

// Device is a system device node found by an Enumerator.
type Device interface {
	// Name is the node name, such as "video0".
	Name() string

	// Path is the absolute node path.
	Path() string

	// Devnum is the device number of the node.
	Devnum() uint64

	// Removed is emitted on the enumerator's thread when the node
	// disappears.
	Removed() *signal.Signal[Device]

	// Release returns a device claimed by Search to the pool.
	Release()
}

// DeviceMatch selects devices in Enumerator.Search.
type DeviceMatch struct {
	// Name is a glob pattern matched against Device.Name. Empty matches
	// every device.
	Name string
}

// Enumerator discovers system devices. It is created and used on the
// manager thread.
type Enumerator interface {
	// Enumerate performs the initial scan.
	Enumerate() error

	// Search returns the first unclaimed device matching m and claims it,
	// or nil when there is none.
	Search(m DeviceMatch) Device

	// DevicesAdded is emitted on the manager thread after new devices have
	// been found.
	DevicesAdded() *signal.Signal[struct{}]

	// Close stops discovery and releases resources.
	Close() error
}

// EnumeratorFactory creates the enumeration backend. It runs on the
// manager thread during Start.
type EnumeratorFactory func() (Enumerator, error)
