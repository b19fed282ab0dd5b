// Package mqtt publishes camera hot-plug state to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - A retained system status with Last Will and Testament (LWT)
//   - Publishing hot-plug events and retained per-camera presence
//
// # Topics
//
//	camcore/camera/added/{camera}     event JSON, not retained
//	camcore/camera/removed/{camera}   event JSON, not retained
//	camcore/camera/state/{camera}     presence JSON, retained, cleared on removal
//	camcore/system/status             online/offline, retained
//
// Camera IDs are device paths, so they are flattened into a single topic
// level by TopicSegment ("/dev/video0" becomes "dev_video0").
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, version)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	relay.AddSink(mqtt.EventSink{Client: client, QoS: byte(cfg.MQTT.QoS)})
//
// # Thread Safety
//
// Client methods are safe for concurrent use. EventSink is stateless.
package mqtt
