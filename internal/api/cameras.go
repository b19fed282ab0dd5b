package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/camcore/internal/camera"
)

// cameraResponse is the JSON view of a registered camera.
type cameraResponse struct {
	ID           string            `json:"id"`
	Devnums      []uint64          `json:"devnums"`
	Properties   camera.Properties `json:"properties"`
	Disconnected bool              `json:"disconnected"`
}

func toCameraResponse(c *camera.Camera) cameraResponse {
	devnums := c.SystemDevices()
	if devnums == nil {
		devnums = []uint64{}
	}
	return cameraResponse{
		ID:           c.ID(),
		Devnums:      devnums,
		Properties:   c.Properties(),
		Disconnected: c.IsDisconnected(),
	}
}

// handleListCameras returns the registered cameras in registration order.
func (s *Server) handleListCameras(w http.ResponseWriter, _ *http.Request) {
	cams := s.cameras.Cameras()
	out := make([]cameraResponse, 0, len(cams))
	for _, c := range cams {
		out = append(out, toCameraResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cameras": out,
		"count":   len(out),
	})
}

// handleGetCamera looks a camera up by ID. The leading slash of path-like
// IDs is optional: /cameras/dev/video0 finds "/dev/video0".
func (s *Server) handleGetCamera(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "*")
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "camera id is required")
		return
	}

	c := s.cameras.Get(id)
	if c == nil && !strings.HasPrefix(id, "/") {
		c = s.cameras.Get("/" + id)
	}
	if c == nil {
		writeError(w, r, http.StatusNotFound, "camera not found")
		return
	}
	writeJSON(w, http.StatusOK, toCameraResponse(c))
}

// handleGetCameraByDevnum finds the camera backed by a device number.
func (s *Server) handleGetCameraByDevnum(w http.ResponseWriter, r *http.Request) {
	devnum, err := strconv.ParseUint(chi.URLParam(r, "devnum"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "devnum must be an unsigned integer")
		return
	}

	c := s.cameras.GetByDevnum(devnum)
	if c == nil {
		writeError(w, r, http.StatusNotFound, "no camera for device number")
		return
	}
	writeJSON(w, http.StatusOK, toCameraResponse(c))
}
