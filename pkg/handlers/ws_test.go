package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/blocks"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/config"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/ot"
	"github.com/BytesCraftIO/snapdocs-sub001/pkg/room"
)

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType string, payload interface{}) {
	t.Helper()
	data, err := room.Encode(eventType, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write %s: %v", eventType, err)
	}
}

// expectEvent reads the next message and decodes its payload into dest.
func expectEvent(t *testing.T, conn *websocket.Conn, eventType string, dest interface{}) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg room.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("waiting for %s: %v", eventType, err)
	}
	if msg.Type != eventType {
		t.Fatalf("got %s (%s), want %s", msg.Type, msg.Payload, eventType)
	}
	if dest != nil {
		if err := json.Unmarshal(msg.Payload, dest); err != nil {
			t.Fatalf("decode %s: %v", eventType, err)
		}
	}
}

func joinPage(t *testing.T, conn *websocket.Conn, pageID, name string) room.CurrentUsersPayload {
	t.Helper()
	sendEvent(t, conn, room.EventJoinPage, room.JoinPayload{
		PageID: pageID,
		User:   room.UserInfo{Name: name},
	})
	var current room.CurrentUsersPayload
	expectEvent(t, conn, room.EventCurrentUsers, &current)
	return current
}

func TestWebSocketCollaboration(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")

	if current := joinPage(t, alice, "p1", "Alice"); len(current.Users) != 0 {
		t.Fatalf("first joiner sees %+v", current.Users)
	}

	current := joinPage(t, bob, "p1", "Bob")
	if len(current.Users) != 1 || current.Users[0].UserID != "alice" || current.Users[0].Name != "Alice" {
		t.Fatalf("bob sees %+v", current.Users)
	}

	var joined room.UserPresence
	expectEvent(t, alice, room.EventUserJoined, &joined)
	if joined.UserID != "bob" || joined.Color == "" || joined.Color == current.Users[0].Color {
		t.Errorf("unexpected user-joined %+v", joined)
	}

	sendEvent(t, alice, room.EventContentUpdate, room.ContentUpdatePayload{
		PageID: "p1",
		Blocks: []blocks.Block{blocks.NewBlock("a", blocks.TypeParagraph, blocks.Text("Hello"), 0)},
	})
	sendEvent(t, alice, room.EventPing, nil)

	var update room.ContentUpdatedPayload
	expectEvent(t, bob, room.EventContentUpdated, &update)
	if update.UserID != "alice" || len(update.Blocks) != 1 || update.Blocks[0].Content.PlainText() != "Hello" {
		t.Errorf("unexpected content-updated %+v", update)
	}
	// the sender gets no echo: its next message is the pong
	expectEvent(t, alice, room.EventPong, nil)

	sendEvent(t, bob, room.EventCursorMove, room.CursorMovePayload{
		PageID:   "p1",
		Position: room.CursorPosition{BlockID: "a", Offset: 2},
	})
	var moved room.CursorMovedPayload
	expectEvent(t, alice, room.EventCursorMoved, &moved)
	if moved.UserID != "bob" || moved.Position.Offset != 2 {
		t.Errorf("unexpected cursor-moved %+v", moved)
	}

	sendEvent(t, bob, room.EventTypingStart, room.TypingPayload{PageID: "p1", BlockID: "a"})
	var typing room.UserTypingPayload
	expectEvent(t, alice, room.EventUserTyping, &typing)
	if typing.UserID != "bob" || typing.BlockID != "a" {
		t.Errorf("unexpected user-typing %+v", typing)
	}
	sendEvent(t, bob, room.EventTypingStop, room.TypingPayload{PageID: "p1", BlockID: "a"})
	expectEvent(t, alice, room.EventUserStoppedTyping, nil)

	bob.Close()
	var left room.UserLeftPayload
	expectEvent(t, alice, room.EventUserLeft, &left)
	if left.UserID != "bob" || left.PageID != "p1" {
		t.Errorf("unexpected user-left %+v", left)
	}
}

func TestWebSocketRejectsBadEvents(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "carol")

	tests := []struct {
		name      string
		raw       string
		wantEvent string
	}{
		{"not json", `{{`, ""},
		{"unknown type", `{"type":"explode"}`, "explode"},
		{"missing payload", `{"type":"join-page"}`, room.EventJoinPage},
		{"missing page id", `{"type":"join-page","payload":{"user":{"name":"C"}}}`, room.EventJoinPage},
		{"forbidden workspace", `{"type":"join-page","payload":{"pageId":"p1","workspaceId":"secret"}}`, room.EventJoinPage},
		{"invalid blocks", `{"type":"content-update","payload":{"pageId":"p1","blocks":[{"id":"","type":"paragraph"}]}}`, room.EventContentUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.raw)); err != nil {
				t.Fatal(err)
			}
			var payload room.ErrorPayload
			expectEvent(t, conn, room.EventError, &payload)
			if payload.Event != tt.wantEvent || payload.Message == "" {
				t.Errorf("unexpected error payload %+v", payload)
			}
		})
	}

	if n := env.registry.RoomCount(); n != 0 {
		t.Errorf("rejected joins created %d rooms", n)
	}
}

func TestWebSocketTypingExpires(t *testing.T) {
	env := newTestEnv(t, func(p *config.Presence) {
		p.TypingTimeout = 50 * time.Millisecond
	})

	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")
	joinPage(t, alice, "p1", "Alice")
	joinPage(t, bob, "p1", "Bob")
	expectEvent(t, alice, room.EventUserJoined, nil)

	sendEvent(t, bob, room.EventTypingStart, room.TypingPayload{PageID: "p1", BlockID: "a"})
	expectEvent(t, alice, room.EventUserTyping, nil)

	var stopped room.UserTypingPayload
	expectEvent(t, alice, room.EventUserStoppedTyping, &stopped)
	if stopped.UserID != "bob" || stopped.BlockID != "a" {
		t.Errorf("unexpected user-stopped-typing %+v", stopped)
	}
}

func TestWebSocketLeaveAndRejoin(t *testing.T) {
	env := newTestEnv(t)
	alice := env.dial(t, "alice")

	joinPage(t, alice, "p1", "Alice")
	joinPage(t, alice, "p2", "Alice")

	sendEvent(t, alice, room.EventPing, nil)
	expectEvent(t, alice, room.EventPong, nil)
	if users := env.registry.Users("p1"); len(users) != 0 {
		t.Errorf("p1 still has %+v", users)
	}

	sendEvent(t, alice, room.EventLeavePage, room.PagePayload{PageID: "p2"})
	sendEvent(t, alice, room.EventPing, nil)
	expectEvent(t, alice, room.EventPong, nil)
	if n := env.registry.RoomCount(); n != 0 {
		t.Errorf("%d rooms left after leave-page", n)
	}
}

func TestWebSocketTextOperation(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPut, "/api/pages/p1/content",
		`{"blocks":[{"id":"a","type":"paragraph","content":"Hello","order":0}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("seed save status = %d", resp.StatusCode)
	}

	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")
	joinPage(t, alice, "p1", "Alice")
	joinPage(t, bob, "p1", "Bob")
	expectEvent(t, alice, room.EventUserJoined, nil)

	sendEvent(t, alice, room.EventTextOperation, room.TextOperationPayload{
		PageID:    "p1",
		BlockID:   "a",
		Operation: ot.Insert(5, " world", "", 0),
	})
	var ack room.TextOperationAckPayload
	expectEvent(t, alice, room.EventTextOperationAck, &ack)
	if ack.Revision != 1 || ack.Operation.UserID != "alice" {
		t.Errorf("unexpected ack %+v", ack)
	}
	var applied room.TextOperationAppliedPayload
	expectEvent(t, bob, room.EventTextOperationApplied, &applied)
	if applied.UserID != "alice" || applied.Operation.Position != 5 || applied.Operation.Content != " world" {
		t.Errorf("unexpected applied %+v", applied)
	}

	// bob's delete of "Hello" was made before seeing alice's insert
	sendEvent(t, bob, room.EventTextOperation, room.TextOperationPayload{
		PageID:    "p1",
		BlockID:   "a",
		Operation: ot.Delete(0, 5, "", 0),
	})
	expectEvent(t, bob, room.EventTextOperationAck, &ack)
	if ack.Revision != 2 {
		t.Errorf("revision = %d, want 2", ack.Revision)
	}

	expectEvent(t, alice, room.EventTextOperationApplied, &applied)
	if applied.Operation.Type != ot.OpDelete || applied.Revision != 2 {
		t.Errorf("unexpected applied %+v", applied)
	}

	sendEvent(t, alice, room.EventTextOperation, room.TextOperationPayload{
		PageID:       "p1",
		BlockID:      "a",
		BaseRevision: 7,
		Operation:    ot.Delete(0, 1, "", 0),
	})
	var rejected room.ErrorPayload
	expectEvent(t, alice, room.EventError, &rejected)
	if rejected.Event != room.EventTextOperation {
		t.Errorf("unexpected error payload %+v", rejected)
	}
}
