// Package hotplug relays camera registry changes to the optional adapters.
//
// The camera manager emits CameraAdded and CameraRemoved on its own thread.
// Anything slow, such as a database insert, a broker publish or a websocket
// broadcast, must not run there. The Relay owns a second object.Thread and
// connects to both signals through object.Slot, so each emission becomes a
// queued invocation on the relay thread:
//
//	manager thread                         relay thread
//	──────────────                         ────────────
//	CameraAdded(cam) ─▶ NewEvent(cam) ─▶ queue ─▶ dispatch(ev) ─▶ Sink 1
//	                                                           ─▶ Sink 2
//	                                     Timer ─▶ sample()     ─▶ StatsSink
//
// Events are snapshots taken on the manager thread, so sinks never touch
// the live *camera.Camera. Sinks are called one after another in
// registration order, each bounded by Options.SinkTimeout. A failing sink
// is logged and counted; it does not stop the others.
//
// On Stop the relay disconnects from the manager first, then delivers
// whatever was already queued before its thread exits.
package hotplug
