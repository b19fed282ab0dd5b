package camera

import "errors"

// Domain errors for the camera package.
//
// Startup failures wrap ErrNoDevice together with the underlying cause:
//
//	if err := mgr.Start(); errors.Is(err, camera.ErrNoDevice) {
//	    // enumeration backend unavailable
//	}
var (
	// ErrNoDevice is returned by Start when the enumeration backend cannot
	// be created or fails to enumerate.
	ErrNoDevice = errors.New("camera: no device")

	// ErrManagerExists is reported when a second Manager is created.
	ErrManagerExists = errors.New("camera: manager already exists")

	// ErrDuplicateCamera is reported when a camera ID is registered twice.
	ErrDuplicateCamera = errors.New("camera: duplicate camera id")

	// ErrNoEnumerator is returned by Start when no enumerator factory is set.
	ErrNoEnumerator = errors.New("camera: no enumerator factory")
)
