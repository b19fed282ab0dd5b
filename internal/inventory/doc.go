// Package inventory records camera hot-plug history in SQLite and serves it
// back for inspection.
//
// Every event the hotplug relay delivers becomes one row of the
// camera_events table (see migrations/). Rows are never updated; a camera
// that comes and goes leaves an added and a removed row.
//
// # Querying
//
// List filters by event type, camera ID and a lower time bound, newest
// first. Limit defaults to 50 and is capped at 200; Total counts every
// matching row regardless of paging, so clients can page through:
//
//	res, err := repo.List(ctx, inventory.Filter{CameraID: "/dev/video0", Limit: 20})
//
// Sink adapts a Repository to hotplug.Sink.
package inventory
