// Package camera implements the camera manager: the process-wide registry
// of discovered cameras and the owner of their lifecycle.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                  Manager (own object.Thread)                  │
//	│                                                               │
//	│  Init:  EnumeratorFactory → Enumerate → match pipelines       │
//	│                                                               │
//	│  ┌──────────────┐  Search/claim  ┌────────────────────────┐   │
//	│  │  Enumerator  │◀───────────────│ PipelineHandler.Match  │   │
//	│  │ DevicesAdded ├───re-match────▶│  (per factory, until   │   │
//	│  └──────────────┘                │   it returns false)    │   │
//	│                                  └───────────┬────────────┘   │
//	│                                   AddCamera / RemoveCamera    │
//	│                                              ▼                │
//	│   registry: []*Camera + devnum → weak.Pointer[Camera] (mu)    │
//	│                                              │                │
//	│                     CameraAdded / CameraRemoved signals       │
//	└──────────────────────────────────────────────┼────────────────┘
//	                                               ▼
//	                                observers (use object.Slot to move
//	                                   slow work off the manager thread)
//
// # Thread Safety
//
// The registry is mutated only on the manager thread, by AddCamera and
// RemoveCamera, which pipeline handlers call from Match or from hot-plug
// slots. Cameras, Get and GetByDevnum may be called from any goroutine.
// Notifications are emitted on the manager thread, after the registry has
// been updated and without the registry lock held.
//
// # Single Instance
//
// Only one Manager may exist at a time. Creating a second one before the
// first is closed is a fatal error.
package camera
