// Package api implements the read-only HTTP API and WebSocket stream for
// camcore.
//
// The server follows the same lifecycle as the infrastructure clients:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Endpoints
//
//	GET /api/v1/health             component health, 503 when one fails
//	GET /api/v1/cameras            registered cameras in registration order
//	GET /api/v1/cameras/{id...}    one camera; /cameras/dev/video0 finds "/dev/video0"
//	GET /api/v1/devnums/{devnum}   the camera backed by a device number
//	GET /api/v1/events             recorded hot-plug history (503 without a database)
//	GET {websocket.path}           WebSocket stream, /ws by default
//
// Error responses share one body, Error, tagged with the request's
// X-Request-ID.
//
// # WebSocket protocol
//
// Clients send JSON requests and receive JSON frames:
//
//	→ {"type":"subscribe","id":"1","payload":{"channels":["camera.added"],"camera_id":"/dev/video0"}}
//	← {"type":"ack","id":"1",...}
//	← {"type":"snapshot","id":"1","channel":"camera.added","seq":7,"payload":{"seq":7,"cameras":[...],"count":1}}
//	← {"type":"event","channel":"camera.removed","seq":8,"payload":{...hotplug.Event...}}
//
// Subscribing to camera.added returns a snapshot of the cameras already
// present, so late clients start from the current registry. Event frames
// are numbered by seq across the hub. The snapshot carries the seq of the
// last event broadcast before it and is queued ahead of every later event.
// The registry can be ahead of event delivery, so a camera.added frame for
// a camera already listed in the snapshot reports the same arrival and can
// be ignored. Omitting
// camera_id subscribes to every camera. A session whose outbound queue
// fills up loses frames instead of blocking the relay.
//
// The Hub is a hotplug.Sink; register it with the relay to feed sessions.
// There is no authentication: bind the listener to a trusted interface.
package api
