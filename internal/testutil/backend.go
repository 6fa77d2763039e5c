package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nhle/taskboard/internal/model"
)

// EventCall records one participant status update.
type EventCall struct {
	EventID string
	UserID  string
	Status  string
}

// InviteCall records one workspace or board invite response. WorkspaceID
// is empty for workspace invites.
type InviteCall struct {
	WorkspaceID string
	Token       string
	Action      string
}

// Handshake records the identity presented when a socket was opened.
type Handshake struct {
	UserID        string
	Authorization string
}

// Reply is a canned HTTP response.
type Reply struct {
	Code int
	Body interface{}
}

// Backend is a fake board backend serving the notification REST API under
// /api and the realtime channel at /ws.
type Backend struct {
	t      *testing.T
	server *httptest.Server

	mu            gosync.Mutex
	notifications []model.Notification
	total         int
	fetches       int
	markReads     map[string]int
	eventCalls    []EventCall
	inviteCalls   []InviteCall
	handshakes    []Handshake
	registrations []string
	conns         map[*websocket.Conn]struct{}
	eventReply    func(EventCall) Reply
	inviteReply   func(InviteCall) Reply
	gate          chan struct{}
	registered    chan struct{}
}

// NewBackend starts a Backend that is shut down when the test completes.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := &Backend{
		t:          t,
		markReads:  make(map[string]int),
		conns:      make(map[*websocket.Conn]struct{}),
		registered: make(chan struct{}, 64),
	}

	r := gin.New()
	api := r.Group("/api")
	api.GET("/notification", b.listNotifications)
	api.PATCH("/notification/:id/read", b.markRead)
	api.PATCH("/event/:eventId/participants/:userId/update-status", b.updateEventStatus)
	api.POST("/workspace/invite-response", b.inviteResponse)
	api.POST("/workspace/:workspaceId/board/invite-response", b.inviteResponse)
	r.GET("/ws", b.serveWS)

	b.server = httptest.NewServer(r)
	t.Cleanup(b.Close)
	return b
}

// APIURL is the REST base URL.
func (b *Backend) APIURL() string { return b.server.URL + "/api" }

// WSURL is the realtime endpoint.
func (b *Backend) WSURL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws"
}

// Close drops all sockets and stops the server.
func (b *Backend) Close() {
	b.DropConnections()
	b.server.Close()
}

// SetNotifications sets the server-side list. A zero total reports no
// totalCount.
func (b *Backend) SetNotifications(list []model.Notification, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifications = append([]model.Notification(nil), list...)
	b.total = total
}

// OnEventStatus overrides the reply to participant status updates.
func (b *Backend) OnEventStatus(fn func(EventCall) Reply) {
	b.mu.Lock()
	b.eventReply = fn
	b.mu.Unlock()
}

// OnInvite overrides the reply to invite responses.
func (b *Backend) OnInvite(fn func(InviteCall) Reply) {
	b.mu.Lock()
	b.inviteReply = fn
	b.mu.Unlock()
}

// Hold makes response endpoints block until the returned function is
// called.
func (b *Backend) Hold() (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.gate = gate
	b.mu.Unlock()

	var once gosync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.gate = nil
			b.mu.Unlock()
			close(gate)
		})
	}
}

// Fetches returns the number of GET /notification calls.
func (b *Backend) Fetches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches
}

// MarkReads returns the number of mark-read calls for id.
func (b *Backend) MarkReads(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.markReads[id]
}

// EventCalls returns the recorded participant status updates.
func (b *Backend) EventCalls() []EventCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]EventCall(nil), b.eventCalls...)
}

// InviteCalls returns the recorded invite responses.
func (b *Backend) InviteCalls() []InviteCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]InviteCall(nil), b.inviteCalls...)
}

// Handshakes returns the identities of all sockets opened so far.
func (b *Backend) Handshakes() []Handshake {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Handshake(nil), b.handshakes...)
}

// Registrations returns the userId of every register_user received.
func (b *Backend) Registrations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.registrations...)
}

// WaitRegistrations blocks until at least n register_user messages have
// arrived or the timeout passes.
func (b *Backend) WaitRegistrations(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if len(b.Registrations()) >= n {
			return true
		}
		select {
		case <-b.registered:
		case <-tick.C:
		case <-deadline:
			return len(b.Registrations()) >= n
		}
	}
}

// Push sends an event to every open socket.
func (b *Backend) Push(event string, data interface{}) {
	b.t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		b.t.Fatalf("encoding push payload: %v", err)
	}
	b.PushRaw(mustJSON(b.t, map[string]json.RawMessage{
		"event": mustJSON(b.t, event),
		"data":  raw,
	}))
}

// PushRaw sends frame verbatim to every open socket.
func (b *Backend) PushRaw(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		_ = c.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.WriteMessage(websocket.TextMessage, frame)
	}
}

// DropConnections closes every open socket without a close handshake.
func (b *Backend) DropConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		_ = c.Close()
		delete(b.conns, c)
	}
}

// OpenConnections returns the number of live sockets.
func (b *Backend) OpenConnections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

func (b *Backend) listNotifications(c *gin.Context) {
	b.mu.Lock()
	b.fetches++
	list := append([]model.Notification(nil), b.notifications...)
	total := b.total
	b.mu.Unlock()

	start, end := 0, len(list)
	if v := c.Query("limit"); v != "" {
		limit, _ := strconv.Atoi(v)
		offset, _ := strconv.Atoi(c.Query("offset"))
		start = min(max(offset, 0), len(list))
		end = min(start+limit, len(list))
	}

	data := gin.H{"notifications": list[start:end]}
	if total > 0 {
		data["totalCount"] = total
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": data})
}

func (b *Backend) markRead(c *gin.Context) {
	id := c.Param("id")

	b.mu.Lock()
	b.markReads[id]++
	for i := range b.notifications {
		if b.notifications[i].NotificationID == id {
			now := time.Now().UTC()
			b.notifications[i].IsRead = true
			b.notifications[i].ReadAt = &now
		}
	}
	b.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (b *Backend) updateEventStatus(c *gin.Context) {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	call := EventCall{EventID: c.Param("eventId"), UserID: c.Param("userId"), Status: body.Status}

	b.mu.Lock()
	b.eventCalls = append(b.eventCalls, call)
	reply, gate := b.eventReply, b.gate
	b.mu.Unlock()

	wait(gate)
	if reply == nil {
		c.JSON(http.StatusOK, gin.H{"status": http.StatusOK})
		return
	}
	r := reply(call)
	c.JSON(r.Code, r.Body)
}

func (b *Backend) inviteResponse(c *gin.Context) {
	var body struct {
		Token  string `json:"token"`
		Action string `json:"action"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	call := InviteCall{WorkspaceID: c.Param("workspaceId"), Token: body.Token, Action: body.Action}

	b.mu.Lock()
	b.inviteCalls = append(b.inviteCalls, call)
	reply, gate := b.inviteReply, b.gate
	b.mu.Unlock()

	wait(gate)
	if reply == nil {
		c.JSON(http.StatusOK, gin.H{"message": "invitation processed"})
		return
	}
	r := reply(call)
	c.JSON(r.Code, r.Body)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (b *Backend) serveWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.handshakes = append(b.handshakes, Handshake{
		UserID:        c.Query("userId"),
		Authorization: c.GetHeader("Authorization"),
	})
	b.conns[conn] = struct{}{}
	b.mu.Unlock()

	go b.readLoop(conn)
}

func (b *Backend) readLoop(conn *websocket.Conn) {
	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Event string `json:"event"`
			Data  struct {
				UserID string `json:"userId"`
			} `json:"data"`
		}
		if json.Unmarshal(data, &msg) != nil || msg.Event != "register_user" {
			continue
		}
		b.mu.Lock()
		b.registrations = append(b.registrations, msg.Data.UserID)
		b.mu.Unlock()
		select {
		case b.registered <- struct{}{}:
		default:
		}
	}
}

func wait(gate chan struct{}) {
	if gate != nil {
		<-gate
	}
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("encoding json: %v", err)
	}
	return raw
}
