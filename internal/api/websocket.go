package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/camcore/internal/hotplug"
	"github.com/nerrad567/camcore/internal/infrastructure/config"
	"github.com/nerrad567/camcore/internal/infrastructure/logging"
)

// Frame types exchanged with WebSocket clients.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameAck         = "ack"
	FrameEvent       = "event"
	FrameSnapshot    = "snapshot"
	FrameError       = "error"
)

// Channels clients can subscribe to.
const (
	ChannelCameraAdded   = "camera.added"
	ChannelCameraRemoved = "camera.removed"
)

const (
	sessionQueueSize = 256

	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
	defaultMaxMessageSize = 8192
)

// Frame is the JSON envelope sent to clients.
type Frame struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Seq       uint64 `json:"seq,omitempty"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// request is the JSON envelope received from clients. The payload is
// decoded according to Type.
type request struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Subscription is the payload of subscribe and unsubscribe requests. An
// empty CameraID covers every camera.
type Subscription struct {
	Channels []string `json:"channels"`
	CameraID string   `json:"camera_id,omitempty"`
}

// snapshotPayload lists the cameras present when a client subscribes to
// camera.added. Seq is the sequence number of the last event broadcast
// before the snapshot was taken.
type snapshotPayload struct {
	Seq     uint64           `json:"seq"`
	Cameras []cameraResponse `json:"cameras"`
	Count   int              `json:"count"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func knownChannel(ch string) bool {
	return ch == ChannelCameraAdded || ch == ChannelCameraRemoved
}

func encodeFrame(typ, id, channel string, seq uint64, payload any) ([]byte, error) {
	return json.Marshal(Frame{
		Type:      typ,
		ID:        id,
		Channel:   channel,
		Seq:       seq,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// Hub fans camera events out to WebSocket sessions. It is a hotplug.Sink.
type Hub struct {
	cfg     config.WebSocketConfig
	cameras CameraSource
	logger  *logging.Logger

	mu       sync.RWMutex
	sessions map[*session]struct{}

	// seqMu orders broadcasts against subscriptions; seq numbers event
	// frames.
	seqMu sync.Mutex
	seq   uint64
}

// NewHub creates a hub. cameras feeds the snapshot sent on subscription to
// camera.added; it may be nil, in which case no snapshot is sent.
func NewHub(cfg config.WebSocketConfig, cameras CameraSource, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		cameras:  cameras,
		logger:   logger,
		sessions: make(map[*session]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every session.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[*session]struct{})
	h.mu.Unlock()

	for s := range sessions {
		s.close()
		if s.conn != nil {
			s.conn.Close()
		}
	}
}

// Handle implements hotplug.Sink.
func (h *Hub) Handle(_ context.Context, ev hotplug.Event) error {
	h.Broadcast("camera."+string(ev.Type), ev.CameraID, ev)
	return nil
}

// Broadcast sends payload on channel to every session subscribed to it for
// cameraID. Each event frame carries the next hub sequence number. It
// returns the number of sessions the frame was queued for.
func (h *Hub) Broadcast(channel, cameraID string, payload any) int {
	h.seqMu.Lock()
	defer h.seqMu.Unlock()

	data, err := encodeFrame(FrameEvent, "", channel, h.seq+1, payload)
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return 0
	}
	h.seq++

	h.mu.RLock()
	sessions := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	sent := 0
	for _, s := range sessions {
		if s.wants(channel, cameraID) && s.send(data) {
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "camera", cameraID, "sessions", sent)
	}
	return sent
}

// ClientCount returns the number of connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) add(s *session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	n := len(h.sessions)
	h.mu.Unlock()
	h.logger.Debug("websocket session opened", "sessions", n)
}

func (h *Hub) remove(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	n := len(h.sessions)
	h.mu.Unlock()

	s.close()
	h.logger.Debug("websocket session closed", "sessions", n)
}

// Seq returns the sequence number of the last event frame broadcast.
func (h *Hub) Seq() uint64 {
	h.seqMu.Lock()
	defer h.seqMu.Unlock()
	return h.seq
}

// snapshot returns the registered cameras matching cameraID, or all of
// them for an empty ID. Caller holds h.seqMu.
func (h *Hub) snapshot(cameraID string) snapshotPayload {
	out := snapshotPayload{Seq: h.seq, Cameras: []cameraResponse{}}
	if h.cameras == nil {
		return out
	}
	for _, c := range h.cameras.Cameras() {
		if cameraID != "" && c.ID() != cameraID {
			continue
		}
		out.Cameras = append(out.Cameras, toCameraResponse(c))
	}
	out.Count = len(out.Cameras)
	return out
}

// keepalive holds the ping period and the time allowed for a pong.
type keepalive struct {
	ping time.Duration
	wait time.Duration
}

func keepaliveFor(cfg config.WebSocketConfig) keepalive {
	ka := keepalive{
		ping: time.Duration(cfg.PingInterval) * time.Second,
		wait: time.Duration(cfg.PongTimeout) * time.Second,
	}
	if ka.ping <= 0 {
		ka.ping = defaultPingInterval
	}
	if ka.wait <= 0 {
		ka.wait = defaultPongTimeout
	}
	return ka
}

// handleWebSocket upgrades the connection and starts a session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	hub := s.Hub()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := newSession(hub, conn)
	hub.add(sess)

	ka := keepaliveFor(hub.cfg)
	limit := int64(hub.cfg.MaxMessageSize)
	if limit <= 0 {
		limit = defaultMaxMessageSize
	}
	go sess.writeLoop(ka)
	go sess.readLoop(ka, limit)
}

// cameraFilter is the set of camera IDs a channel subscription covers. A
// nil filter covers every camera.
type cameraFilter map[string]struct{}

// session is one WebSocket connection.
type session struct {
	hub  *Hub
	conn *websocket.Conn
	out  chan []byte

	mu      sync.Mutex
	closed  bool
	dropped int
	subs    map[string]cameraFilter
}

func newSession(h *Hub, conn *websocket.Conn) *session {
	return &session{
		hub:  h,
		conn: conn,
		out:  make(chan []byte, sessionQueueSize),
		subs: make(map[string]cameraFilter),
	}
}

// send queues data for the writer. Frames for a closed session or a full
// queue are dropped.
func (s *session) send(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.out <- data:
		return true
	default:
		s.dropped++
		if s.dropped == 1 {
			s.hub.logger.Warn("websocket session too slow, dropping frames")
		}
		return false
	}
}

// close stops the writer. It is idempotent.
func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

func (s *session) wants(channel, cameraID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	filter, ok := s.subs[channel]
	if !ok {
		return false
	}
	if filter == nil {
		return true
	}
	_, ok = filter[cameraID]
	return ok
}

func (s *session) reply(typ, id string, payload any) {
	data, err := encodeFrame(typ, id, "", 0, payload)
	if err != nil {
		s.hub.logger.Error("encoding websocket reply", "type", typ, "error", err)
		return
	}
	s.send(data)
}

func (s *session) fail(id, message string) {
	s.reply(FrameError, id, map[string]string{"message": message})
}

func (s *session) readLoop(ka keepalive, limit int64) {
	defer func() {
		s.hub.remove(s)
		s.conn.Close()
	}()

	extend := func() error {
		return s.conn.SetReadDeadline(time.Now().Add(ka.ping + ka.wait))
	}
	s.conn.SetReadLimit(limit)
	_ = extend()
	s.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Application frames count as liveness too.
		_ = extend()
		s.dispatch(data)
	}
}

func (s *session) writeLoop(ka keepalive) {
	ticker := time.NewTicker(ka.ping)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.out:
			if !ok {
				_ = s.write(websocket.CloseMessage, nil, ka.wait)
				return
			}
			if err := s.write(websocket.TextMessage, data, ka.wait); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil, ka.wait); err != nil {
				return
			}
		}
	}
}

func (s *session) write(kind int, data []byte, wait time.Duration) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(wait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(kind, data)
}

func (s *session) dispatch(data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		s.fail("", "invalid JSON message")
		return
	}

	switch req.Type {
	case FrameSubscribe:
		s.subscribe(req)
	case FrameUnsubscribe:
		s.unsubscribe(req)
	case FramePing:
		s.reply(FramePong, req.ID, nil)
	default:
		s.fail(req.ID, "unknown message type: "+req.Type)
	}
}

func parseSubscription(raw json.RawMessage) (Subscription, error) {
	var sub Subscription
	if len(raw) == 0 {
		return sub, errors.New("payload is required")
	}
	if err := json.Unmarshal(raw, &sub); err != nil {
		return sub, errors.New("invalid subscription payload")
	}
	if len(sub.Channels) == 0 {
		return sub, errors.New("at least one channel is required")
	}
	for _, ch := range sub.Channels {
		if !knownChannel(ch) {
			return sub, fmt.Errorf("unknown channel: %s", ch)
		}
	}
	return sub, nil
}

// subscribe registers the channels, acknowledges, and then sends the
// current registry if camera.added was requested. No event is broadcast
// in between, so the snapshot precedes every event frame with a higher
// seq. The registry runs ahead of event delivery: a later camera.added for
// a camera already in the snapshot is the arrival the snapshot reported.
func (s *session) subscribe(req request) {
	sub, err := parseSubscription(req.Payload)
	if err != nil {
		s.fail(req.ID, err.Error())
		return
	}

	s.hub.seqMu.Lock()
	defer s.hub.seqMu.Unlock()

	s.mu.Lock()
	for _, ch := range sub.Channels {
		filter, exists := s.subs[ch]
		switch {
		case sub.CameraID == "":
			s.subs[ch] = nil
		case exists && filter == nil:
			// Already covers every camera.
		case exists:
			filter[sub.CameraID] = struct{}{}
		default:
			s.subs[ch] = cameraFilter{sub.CameraID: {}}
		}
	}
	s.mu.Unlock()

	s.hub.logger.Debug("websocket session subscribed", "channels", sub.Channels, "camera", sub.CameraID)
	s.reply(FrameAck, req.ID, map[string]any{
		"subscribed": sub.Channels,
		"camera_id":  sub.CameraID,
	})

	if slices.Contains(sub.Channels, ChannelCameraAdded) {
		snap := s.hub.snapshot(sub.CameraID)
		data, err := encodeFrame(FrameSnapshot, req.ID, ChannelCameraAdded, snap.Seq, snap)
		if err != nil {
			s.hub.logger.Error("encoding camera snapshot", "error", err)
			return
		}
		s.send(data)
	}
}

// unsubscribe drops whole channels, or a single camera from a channel
// subscribed per camera.
func (s *session) unsubscribe(req request) {
	sub, err := parseSubscription(req.Payload)
	if err != nil {
		s.fail(req.ID, err.Error())
		return
	}

	s.mu.Lock()
	if sub.CameraID != "" {
		for _, ch := range sub.Channels {
			if filter, exists := s.subs[ch]; exists && filter == nil {
				s.mu.Unlock()
				s.fail(req.ID, "channel "+ch+" is subscribed for every camera")
				return
			}
		}
	}
	for _, ch := range sub.Channels {
		filter, exists := s.subs[ch]
		if !exists {
			continue
		}
		if sub.CameraID == "" {
			delete(s.subs, ch)
			continue
		}
		delete(filter, sub.CameraID)
		if len(filter) == 0 {
			delete(s.subs, ch)
		}
	}
	s.mu.Unlock()

	s.reply(FrameAck, req.ID, map[string]any{
		"unsubscribed": sub.Channels,
		"camera_id":    sub.CameraID,
	})
}
