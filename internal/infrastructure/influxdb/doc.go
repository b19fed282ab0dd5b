// Package influxdb records camera hot-plug history and worker thread
// counters in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched writes, and health monitoring.
//
// # Measurements
//
//	camera_events  tags: type, camera_id, pipeline   fields: event_id, devices
//	thread_queue   tags: thread                      fields: posted, delivered, dropped, panics, queued
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	relay.AddSink(client)
//	relay.AddStatsSink(client)
//
// # Error Handling
//
// Writes are non-blocking; batch failures are delivered to the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
