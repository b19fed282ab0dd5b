// Package generic provides a pipeline handler that turns every unclaimed
// device node into a camera, with no hardware-specific logic.
//
// Importing the package registers the "generic" factory with the camera
// package. Each handler instance claims one node: the camera ID is the
// node path and its only device number is the node's. When the node
// disappears the camera is removed from the registry and closed.
package generic
