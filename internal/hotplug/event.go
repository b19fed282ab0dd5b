package hotplug

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/camcore/internal/camera"
	"github.com/nerrad567/camcore/internal/object"
)

// EventType distinguishes camera arrivals from departures.
type EventType string

const (
	EventAdded   EventType = "added"
	EventRemoved EventType = "removed"
)

// Event is a registry change as seen by the adapters. It is a value copy;
// holding it does not keep the camera alive.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	CameraID  string            `json:"camera_id"`
	Devnums   []uint64          `json:"devnums"`
	Props     camera.Properties `json:"properties"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewEvent snapshots cam. Call it on the thread that emitted the change.
func NewEvent(typ EventType, cam *camera.Camera) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		CameraID:  cam.ID(),
		Devnums:   cam.SystemDevices(),
		Props:     cam.Properties(),
		Timestamp: time.Now().UTC(),
	}
}

// Sink receives events on the relay thread, one at a time and in emission
// order. An error is logged and does not stop delivery to other sinks.
type Sink interface {
	Handle(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Handle implements Sink.
func (f SinkFunc) Handle(ctx context.Context, ev Event) error { return f(ctx, ev) }

// StatsSink receives periodic thread counters.
type StatsSink interface {
	RecordThreadStats(ctx context.Context, thread string, s object.Stats) error
}
