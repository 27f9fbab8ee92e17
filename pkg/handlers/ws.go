package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/apperr"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/auth"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/blocks"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/room"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	authWait   = 5 * time.Second
)

// Origins are enforced by the CORS layer and the token check
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// connection is the per-socket state owned by readPump
type connection struct {
	conn     *websocket.Conn
	client   *room.Client
	identity auth.Identity
	verified bool
	userID   string

	typingMu    sync.Mutex
	typingTimer *time.Timer
}

// HandleWebSocket upgrades the request and serves presence events until the
// socket closes.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &connection{
		conn:   conn,
		client: room.NewClient(uuid.New().String(), h.presence.SendBuffer),
	}
	c.identity, c.verified = auth.FromContext(r.Context())

	h.logger.Debug("websocket connected", "conn_id", c.client.ID, "user_id", c.identity.UserID)

	go h.writePump(c)
	h.readPump(context.WithoutCancel(r.Context()), c)
}

// readPump handles reading messages from the WebSocket
func (h *Handlers) readPump(ctx context.Context, c *connection) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in readPump", "conn_id", c.client.ID, "error", r, "stack", string(debug.Stack()))
		}
		c.stopTyping()
		h.registry.Disconnect(c.client)
		c.conn.Close()
		h.logger.Debug("websocket disconnected", "conn_id", c.client.ID)
	}()

	c.conn.SetReadLimit(h.presence.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket closed unexpectedly", "conn_id", c.client.ID, "error", err)
			}
			return
		}

		var msg room.Message
		if err := json.Unmarshal(message, &msg); err != nil {
			h.sendError(c, "", "invalid message envelope")
			continue
		}

		if err := h.dispatch(ctx, c, msg); err != nil {
			h.logger.Debug("event rejected", "conn_id", c.client.ID, "type", msg.Type, "error", err)
			h.sendError(c, msg.Type, err.Error())
		}
	}
}

// writePump handles writing messages to the WebSocket
func (h *Handlers) writePump(c *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.client.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("websocket write failed", "conn_id", c.client.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handlers) dispatch(ctx context.Context, c *connection, msg room.Message) error {
	switch msg.Type {
	case room.EventJoinPage:
		var p room.JoinPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		return h.join(ctx, c, p)

	case room.EventLeavePage:
		var p room.PagePayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		c.stopTyping()
		h.registry.Leave(c.client, p.PageID)

	case room.EventContentUpdate:
		var p room.ContentUpdatePayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		if err := blocks.ValidateTree(p.Blocks); err != nil {
			return err
		}
		uid := c.userID
		if uid == "" {
			uid = p.UserID
		}
		h.registry.BroadcastEdit(c.client, p.PageID, p.Blocks, uid)

	case room.EventTextOperation:
		var p room.TextOperationPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		if _, err := h.registry.ApplyTextOperation(ctx, c.client, p, h.content.BlockText); err != nil {
			return err
		}

	case room.EventCursorMove:
		var p room.CursorMovePayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		h.registry.CursorMove(c.client, p.PageID, p.Position)

	case room.EventSelectionChange:
		var p room.SelectionChangePayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		h.registry.SelectionChange(c.client, p.PageID, p.Selection)

	case room.EventTypingStart:
		var p room.TypingPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		if current, ok := h.registry.PageOf(c.client); ok && current == p.PageID {
			h.registry.TypingStart(c.client, p.PageID, p.BlockID)
			h.scheduleTypingStop(c, p)
		}

	case room.EventTypingStop:
		var p room.TypingPayload
		if err := decode(msg, &p); err != nil {
			return err
		}
		c.stopTyping()
		h.registry.TypingStop(c.client, p.PageID, p.BlockID)

	case room.EventPing:
		h.send(c, room.EventPong, nil)

	default:
		return apperr.NewValidationError(fmt.Errorf("unknown event type %q", msg.Type))
	}
	return nil
}

// join merges the authenticated identity into the requested user info and
// asks the authorizer before entering the room.
func (h *Handlers) join(ctx context.Context, c *connection, p room.JoinPayload) error {
	if c.verified {
		p.User.ID = c.identity.UserID
		if p.User.Name == "" {
			p.User.Name = c.identity.Name
		}
		if p.User.Email == "" {
			p.User.Email = c.identity.Email
		}
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if p.User.ID == "" {
		return apperr.NewValidationError(errors.New("user: id is required"))
	}

	identity := c.identity
	if !c.verified {
		identity = auth.Identity{UserID: p.User.ID, Name: p.User.Name, Email: p.User.Email}
	}

	ctx, cancel := context.WithTimeout(ctx, authWait)
	defer cancel()
	allowed, err := h.authorizer.CanJoin(ctx, identity, p.PageID, p.WorkspaceID)
	if err != nil {
		h.logger.Error("authorization check failed", "page_id", p.PageID, "user_id", p.User.ID, "error", err)
		return errors.New("authorization check failed")
	}
	if !allowed {
		return fmt.Errorf("%w: not allowed to join page %s", apperr.ErrForbidden, p.PageID)
	}

	c.stopTyping()
	c.userID = p.User.ID
	h.registry.Join(c.client, p)
	return nil
}

// scheduleTypingStop clears a typing indicator the client never stopped.
func (h *Handlers) scheduleTypingStop(c *connection, p room.TypingPayload) {
	timeout := h.presence.TypingTimeout
	if timeout <= 0 {
		return
	}

	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(timeout, func() {
		h.registry.TypingStop(c.client, p.PageID, p.BlockID)
	})
}

func (c *connection) stopTyping() {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
}

func (h *Handlers) send(c *connection, eventType string, payload interface{}) {
	data, err := room.Encode(eventType, payload)
	if err != nil {
		h.logger.Error("failed to encode event", "type", eventType, "error", err)
		return
	}
	if !c.client.Deliver(data) {
		h.logger.Warn("dropping message for slow client", "conn_id", c.client.ID, "type", eventType)
	}
}

func (h *Handlers) sendError(c *connection, event, message string) {
	h.send(c, room.EventError, room.ErrorPayload{Event: event, Message: message})
}

func decode(msg room.Message, dest interface{}) error {
	if len(msg.Payload) == 0 {
		return apperr.NewValidationError(fmt.Errorf("%s: payload is required", msg.Type))
	}
	if err := json.Unmarshal(msg.Payload, dest); err != nil {
		return apperr.NewValidationError(fmt.Errorf("%s: invalid payload: %w", msg.Type, err))
	}
	return nil
}
