// Package enumerator discovers camera device nodes on the filesystem.
//
// The device-node enumerator scans a directory (normally /dev) for entries
// matching glob patterns (normally "video*"), records each node's device
// number, and watches the directory for hot-plug with fsnotify. It
// implements camera.Enumerator.
//
// Filesystem events arrive on a watcher goroutine and are marshalled onto
// the enumerator's own thread with InvokeMethod, so DevicesAdded and the
// per-node Removed signals are always emitted on the thread that created
// the enumerator: the camera manager thread.
package enumerator
