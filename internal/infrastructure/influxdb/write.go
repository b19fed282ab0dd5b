package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/camcore/internal/hotplug"
	"github.com/nerrad567/camcore/internal/object"
)

// Measurement names.
const (
	MeasurementCameraEvents = "camera_events"
	MeasurementThreadQueue  = "thread_queue"
)

// WriteCameraEvent records a hot-plug event at the event's timestamp.
//
// Tags: type, camera_id and pipeline (when set). Fields: event_id and the
// number of backing devices.
func (c *Client) WriteCameraEvent(ev hotplug.Event) {
	tags := map[string]string{
		"type":      string(ev.Type),
		"camera_id": ev.CameraID,
	}
	if ev.Props.Pipeline != "" {
		tags["pipeline"] = ev.Props.Pipeline
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	c.WritePointWithTime(MeasurementCameraEvents, tags, map[string]any{
		"event_id": ev.ID,
		"devices":  int64(len(ev.Devnums)),
	}, ts)
}

// WriteThreadStats records the message counters of one worker thread.
func (c *Client) WriteThreadStats(thread string, s object.Stats) {
	// #nosec G115 -- counters cannot realistically exceed int64
	c.WritePoint(MeasurementThreadQueue, map[string]string{"thread": thread}, map[string]any{
		"posted":    int64(s.Posted),
		"delivered": int64(s.Delivered),
		"dropped":   int64(s.Dropped),
		"panics":    int64(s.Panics),
		"queued":    int64(s.Queued),
	})
}

// WritePoint writes a custom point timestamped now.
//
//	client.WritePoint("thread_queue",
//	    map[string]string{"thread": "camera-manager"},
//	    map[string]any{"queued": 3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

// Handle implements hotplug.Sink. Points are batched; delivery failures are
// reported through SetOnError.
func (c *Client) Handle(_ context.Context, ev hotplug.Event) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.WriteCameraEvent(ev)
	return nil
}

// RecordThreadStats implements hotplug.StatsSink.
func (c *Client) RecordThreadStats(_ context.Context, thread string, s object.Stats) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.WriteThreadStats(thread, s)
	return nil
}
