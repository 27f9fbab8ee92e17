package relay

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
)

func newTestRelay() *RedisRelay {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	return NewRedisRelay(rdb, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHandleSkipsOwnMessages(t *testing.T) {
	r := newTestRelay()
	defer r.Close()

	payload, _ := json.Marshal(envelope{Origin: r.instanceID, PageID: "P", Data: json.RawMessage(`{"type":"pong"}`)})
	called := false
	r.handle("rooms:P", string(payload), func(string, []byte) int {
		called = true
		return 0
	})
	if called {
		t.Error("own broadcast was delivered back")
	}
}

func TestHandleDeliversRemoteMessages(t *testing.T) {
	r := newTestRelay()
	defer r.Close()

	payload, _ := json.Marshal(envelope{Origin: "other-instance", Data: json.RawMessage(`{"type":"user-typing"}`)})

	var gotPage, gotData string
	ok := r.handle("rooms:P", string(payload), func(pageID string, data []byte) int {
		gotPage, gotData = pageID, string(data)
		return 1
	})
	if !ok {
		t.Fatal("remote message not handled")
	}
	if gotPage != "P" {
		t.Errorf("page = %q, want page id taken from the channel", gotPage)
	}
	if gotData != `{"type":"user-typing"}` {
		t.Errorf("data = %s", gotData)
	}
}

func TestHandleRejectsGarbage(t *testing.T) {
	r := newTestRelay()
	defer r.Close()

	if r.handle("rooms:P", "not json", func(string, []byte) int { return 0 }) {
		t.Error("invalid payload handled")
	}
}

func TestChannelNaming(t *testing.T) {
	r := NewRedisRelay(redis.NewClient(&redis.Options{}), "test:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer r.Close()

	if got := r.channel("abc"); got != "test:abc" {
		t.Errorf("channel = %s", got)
	}
}
