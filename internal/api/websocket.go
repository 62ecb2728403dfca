package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/amterp/kanflow/internal/cache"
	"github.com/amterp/kanflow/internal/feed"
	"github.com/amterp/kanflow/internal/model"
	"github.com/amterp/kanflow/internal/service"
	"github.com/amterp/kanflow/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Message types exchanged over the websocket.
const (
	MsgConnected    = "connected"
	MsgBoardChanged = "board_changed"
	MsgNotification = "notification"
	MsgError        = "error"

	MsgDragStart  = "drag_start"
	MsgDragOver   = "drag_over"
	MsgDragEnd    = "drag_end"
	MsgDragCancel = "drag_cancel"

	MsgDragStarted = "drag_started"
	MsgDragResult  = "drag_result"
	MsgMoveResult  = "move_result"
)

// Mover is what the hub needs from the reorder service to run drags.
type Mover interface {
	Store(ctx context.Context, boardID string) (*cache.Store, error)
	Move(ctx context.Context, boardID string, intent model.MoveIntent) (service.Outcome, error)
}

// WebSocketHub manages websocket connections. It pushes board changes and
// notices to clients and runs one drag session per client and board.
type WebSocketHub struct {
	mover  Mover
	logger *log.Logger

	mu      sync.RWMutex
	clients map[*WebSocketClient]bool
}

// WebSocketClient represents a connected websocket client.
type WebSocketClient struct {
	hub   *WebSocketHub
	conn  *websocket.Conn
	send  chan []byte
	board string // Only this board's events are pushed; empty means all

	// Owned by the read loop
	sessions map[string]*session.Session
	// Drops still persisting
	moves sync.WaitGroup
}

// WebSocketMessage is the JSON message sent to clients.
type WebSocketMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ClientMessage is a drag event sent by a client.
type ClientMessage struct {
	Type        string               `json:"type"`
	Board       string               `json:"board"`
	ItemID      string               `json:"item_id,omitempty"`
	GroupID     string               `json:"group_id,omitempty"`
	Destination *session.Destination `json:"destination,omitempty"`
}

// DragResult reports how a drag ended without a move.
type DragResult struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// MoveResult is the outcome of a dropped drag.
type MoveResult struct {
	service.Outcome
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// NewWebSocketHub creates a new websocket hub. mover may be nil, in which
// case drag events are refused.
func NewWebSocketHub(mover Mover, logger *log.Logger) *WebSocketHub {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &WebSocketHub{
		mover:   mover,
		logger:  logger,
		clients: make(map[*WebSocketClient]bool),
	}
}

// OnBoardChange implements feed.Subscriber.
func (h *WebSocketHub) OnBoardChange(ev feed.Event) {
	h.publish(ev.BoardID, MsgBoardChanged, ev)
}

// Notify implements service.Notifier.
func (h *WebSocketHub) Notify(n service.Notice) {
	h.publish(n.BoardID, MsgNotification, n)
}

func (h *WebSocketHub) publish(boardID, kind string, payload any) {
	data, err := json.Marshal(WebSocketMessage{Type: kind, Data: payload})
	if err != nil {
		h.logger.WithError(err).WithField("type", kind).Error("failed to marshal websocket message")
		return
	}
	h.broadcast(boardID, data)
}

// broadcast sends a message to every client watching boardID.
func (h *WebSocketHub) broadcast(boardID string, data []byte) {
	h.mu.RLock()
	clients := make([]*WebSocketClient, 0, len(h.clients))
	for client := range h.clients {
		if client.board == "" || boardID == "" || client.board == boardID {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.trySend(client, data)
	}
}

// trySend attempts to send data to a client, handling the case where
// the client's channel was closed between snapshot and send.
func (h *WebSocketHub) trySend(client *WebSocketClient, data []byte) {
	defer func() {
		// Channel was closed by removeClient, client already cleaned up
		_ = recover()
	}()

	select {
	case client.send <- data:
	default:
		// Client buffer full, close it
		h.removeClient(client)
	}
}

func (h *WebSocketHub) addClient(client *WebSocketClient) {
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
}

func (h *WebSocketHub) removeClient(client *WebSocketClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

// ServeWS handles websocket connection requests. The optional "board"
// query parameter limits pushed events to one board.
func (h *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &WebSocketClient{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		board:    r.URL.Query().Get("board"),
		sessions: make(map[string]*session.Session),
	}

	h.addClient(client)

	go client.writePump()
	go client.readPump(detach(r))

	client.reply(WebSocketMessage{
		Type: MsgConnected,
		Data: map[string]any{"board": client.board},
	})
}

// handle runs one client drag event and returns the replies for it. A drop
// returns nothing; its move_result is sent once the move settles.
func (c *WebSocketClient) handle(ctx context.Context, msg ClientMessage) []WebSocketMessage {
	if c.hub.mover == nil {
		return []WebSocketMessage{errorMessage("drag events are not supported by this server")}
	}
	if msg.Board == "" {
		return []WebSocketMessage{errorMessage("board is required")}
	}
	sess, err := c.session(ctx, msg.Board)
	if err != nil {
		return []WebSocketMessage{errorMessage(err.Error())}
	}

	switch msg.Type {
	case MsgDragStart:
		if err := sess.Start(msg.ItemID); err != nil {
			return []WebSocketMessage{errorMessage(err.Error())}
		}
		itemID, groupID, index := sess.Origin()
		return []WebSocketMessage{{Type: MsgDragStarted, Data: map[string]any{
			"board":    msg.Board,
			"item_id":  itemID,
			"group_id": groupID,
			"index":    index,
		}}}

	case MsgDragOver:
		return []WebSocketMessage{{Type: MsgDragOver, Data: map[string]any{
			"board":    msg.Board,
			"group_id": msg.GroupID,
			"accepts":  sess.Over(msg.GroupID),
		}}}

	case MsgDragCancel:
		res := sess.Cancel()
		return []WebSocketMessage{{Type: MsgDragResult, Data: DragResult{State: res.State.String(), Reason: res.Reason}}}

	case MsgDragEnd:
		res := sess.End(msg.Destination)
		if res.State != session.Dropped {
			return []WebSocketMessage{{Type: MsgDragResult, Data: DragResult{State: res.State.String(), Reason: res.Reason}}}
		}
		intent := *res.Intent
		c.moves.Add(1)
		go c.drop(ctx, msg.Board, intent)
		return nil
	}
	return []WebSocketMessage{errorMessage("unknown message type " + msg.Type)}
}

// drop persists a dropped drag and replies with its move_result. It runs
// off the read loop; Move's per-item lock orders drops of the same item.
func (c *WebSocketClient) drop(ctx context.Context, boardID string, intent model.MoveIntent) {
	defer c.moves.Done()

	out, err := c.hub.mover.Move(ctx, boardID, intent)
	result := MoveResult{Outcome: out}
	if err != nil {
		status, body := errorStatus(err)
		result.Error = body.Error
		result.Retryable = body.Retryable
		c.hub.logger.WithFields(log.Fields{
			"board":  boardID,
			"item":   intent.ItemID,
			"status": status,
		}).WithError(err).Warn("websocket move failed")
	}
	c.reply(WebSocketMessage{Type: MsgMoveResult, Data: result})
}

func (c *WebSocketClient) session(ctx context.Context, boardID string) (*session.Session, error) {
	if sess, ok := c.sessions[boardID]; ok {
		return sess, nil
	}
	st, err := c.hub.mover.Store(ctx, boardID)
	if err != nil {
		return nil, err
	}
	sess := session.New(st)
	c.sessions[boardID] = sess
	return sess, nil
}

func errorMessage(message string) WebSocketMessage {
	return WebSocketMessage{Type: MsgError, Data: map[string]string{"message": message}}
}

func (c *WebSocketClient) reply(msg WebSocketMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.WithError(err).Error("failed to marshal websocket reply")
		return
	}
	c.hub.trySend(c, data)
}

// readPump reads drag events from the connection until it closes.
func (c *WebSocketClient) readPump(ctx context.Context) {
	defer func() {
		// Closing send signals writePump to exit; writePump closes the
		// connection
		c.hub.removeClient(c)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).Debug("websocket read error")
			}
			break
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(errorMessage("invalid JSON message"))
			continue
		}
		for _, r := range c.handle(ctx, msg) {
			c.reply(r)
		}
	}

	// A connection dropped mid-drag abandons it
	for _, sess := range c.sessions {
		sess.Cancel()
	}
	c.moves.Wait()
}

// writePump writes messages to the websocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(30 * time.Second) // Ping interval
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per message so every frame is valid JSON
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(c.send)
			for i := 0; i < n; i++ {
				queued := <-c.send
				if err := c.conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
