package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/camcore/internal/hotplug"
)

// maxPayloadSize guards against runaway payloads (1MB).
const maxPayloadSize = 1 << 20

// Publish sends a message to topic and waits for the broker acknowledgment
// (bounded by the publish timeout).
//
// QoS Levels:
//   - 0: At most once (fire and forget)
//   - 1: At least once (guaranteed delivery, may duplicate)
//   - 2: Exactly once (guaranteed, no duplicates, higher overhead)
//
// A retained message with an empty payload clears the retained value.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishRetained publishes a retained message with the configured default QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

// Publisher is the subset of *Client used by EventSink.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// cameraState is the retained presence payload.
type cameraState struct {
	Present  bool     `json:"present"`
	CameraID string   `json:"camera_id"`
	Devnums  []uint64 `json:"devnums"`
	Model    string   `json:"model,omitempty"`
	Pipeline string   `json:"pipeline,omitempty"`
	Since    string   `json:"since"`
}

// EventSink publishes hot-plug events. Each event goes to its event topic;
// additions also set the retained presence topic and removals clear it.
type EventSink struct {
	Client Publisher
	QoS    byte
}

// Handle implements hotplug.Sink.
func (s EventSink) Handle(ctx context.Context, ev hotplug.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	topics := Topics{}
	if err := s.Client.Publish(topics.CameraEvent(string(ev.Type), ev.CameraID), payload, s.QoS, false); err != nil {
		return err
	}

	var state []byte
	if ev.Type == hotplug.EventAdded {
		state, err = json.Marshal(cameraState{
			Present:  true,
			CameraID: ev.CameraID,
			Devnums:  ev.Devnums,
			Model:    ev.Props.Model,
			Pipeline: ev.Props.Pipeline,
			Since:    ev.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		})
		if err != nil {
			return fmt.Errorf("marshalling camera state: %w", err)
		}
	}
	return s.Client.Publish(topics.CameraState(ev.CameraID), state, s.QoS, true)
}
