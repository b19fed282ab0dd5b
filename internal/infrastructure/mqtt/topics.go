package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for camcore.
//
//	camcore/camera/{added|removed}/{camera}   hot-plug events (not retained)
//	camcore/camera/state/{camera}             presence (retained)
//	camcore/system/status                     online/offline (retained, LWT)
const (
	TopicPrefix       = "camcore"
	TopicPrefixCamera = TopicPrefix + "/camera"
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics provides builders for camcore MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.CameraEvent("added", "/dev/video0")
//	// Returns: "camcore/camera/added/dev_video0"
type Topics struct{}

// CameraEvent returns the topic for a hot-plug event.
func (Topics) CameraEvent(eventType, cameraID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixCamera, eventType, TopicSegment(cameraID))
}

// CameraState returns the retained presence topic of a camera.
func (Topics) CameraState(cameraID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefixCamera, TopicSegment(cameraID))
}

// AllCameraEvents matches every hot-plug event topic.
func (Topics) AllCameraEvents() string {
	return TopicPrefixCamera + "/+/+"
}

// SystemStatus returns the retained online/offline topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// TopicSegment turns an arbitrary ID into a single topic level. Camera IDs
// are often device paths, so separators and wildcards are replaced.
func TopicSegment(id string) string {
	id = strings.TrimLeft(id, "/")
	if id == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', 0:
			return '_'
		}
		return r
	}, id)
}
