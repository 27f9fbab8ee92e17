// Package room tracks which connections are viewing each page and relays
// presence and live edit events between them.
package room

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BytesCraftIO/snapdocs-sub001/pkg/blocks"
)

// DefaultPalette is used when no palette is configured
var DefaultPalette = []string{
	"#E57373", "#64B5F6", "#81C784", "#FFB74D",
	"#BA68C8", "#4DB6AC", "#F06292", "#A1887F",
}

// CursorPosition is a caret inside a block
type CursorPosition struct {
	BlockID string `json:"blockId"`
	Offset  int    `json:"offset"`
}

// Selection is a range between two cursor positions
type Selection struct {
	Anchor CursorPosition `json:"anchor"`
	Head   CursorPosition `json:"head"`
}

// UserPresence is the live state of one connection in a room
type UserPresence struct {
	UserID         string          `json:"userId"`
	Name           string          `json:"name"`
	Email          string          `json:"email,omitempty"`
	AvatarURL      string          `json:"avatarUrl,omitempty"`
	ConnectionID   string          `json:"connectionId"`
	Color          string          `json:"color"`
	CursorPosition *CursorPosition `json:"cursorPosition,omitempty"`
	Selection      *Selection      `json:"selection,omitempty"`
}

func (p UserPresence) clone() UserPresence {
	out := p
	if p.CursorPosition != nil {
		pos := *p.CursorPosition
		out.CursorPosition = &pos
	}
	if p.Selection != nil {
		sel := *p.Selection
		out.Selection = &sel
	}
	return out
}

// Relay carries broadcasts to other server instances
type Relay interface {
	Publish(ctx context.Context, pageID string, data []byte) error
}

// EventKind describes a room lifecycle change
type EventKind string

const (
	RoomCreated   EventKind = "room-created"
	RoomDestroyed EventKind = "room-destroyed"
)

// RoomEvent is delivered to Subscribe callbacks
type RoomEvent struct {
	Kind   EventKind
	PageID string
}

// outbound is a broadcast queued for the relay
type outbound struct {
	pageID string
	data   []byte
}

type member struct {
	client   *Client
	presence UserPresence
	joined   uint64
}

// Room is the set of connections viewing one page
type Room struct {
	PageID      string
	WorkspaceID string
	members     map[string]*member
	mutex       sync.RWMutex

	// sequenced block text for text operations, dropped with the room
	texts  map[string]*blockText
	textMu sync.Mutex
}

func (r *Room) users(excludeConnID string) []UserPresence {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	list := make([]*member, 0, len(r.members))
	for id, m := range r.members {
		if id != excludeConnID {
			list = append(list, m)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].joined < list[j].joined })

	users := make([]UserPresence, len(list))
	for i, m := range list {
		users[i] = m.presence.clone()
	}
	return users
}

// broadcast sends data to every member except excludeConnID and returns the
// number of members it was delivered to.
func (r *Room) broadcast(data []byte, excludeConnID string, logger *slog.Logger) int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	delivered := 0
	for id, m := range r.members {
		if id == excludeConnID {
			continue
		}
		if m.client.Deliver(data) {
			delivered++
		} else {
			// drop on slow client
			logger.Debug("dropped message for slow client", "page_id", r.PageID, "conn_id", id)
		}
	}
	return delivered
}

func (r *Room) size() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.members)
}

// RoomRegistry owns every room of the process. It is created once at start
// and passed to the connection handlers.
type RoomRegistry struct {
	rooms   map[string]*Room
	clients map[string]string // connection id -> page id
	mutex   sync.RWMutex

	palette      []string
	colorCounter uint64
	joinCounter  uint64

	relay          Relay
	publishTimeout time.Duration
	now            func() time.Time

	observersMu  sync.Mutex
	observers    map[int]func(RoomEvent)
	nextObserver int

	logger *slog.Logger
}

// Option configures a RoomRegistry
type Option func(*RoomRegistry)

// WithPalette sets the colors assigned to joining users.
func WithPalette(palette []string) Option {
	return func(rr *RoomRegistry) {
		if len(palette) > 0 {
			rr.palette = append([]string(nil), palette...)
		}
	}
}

// WithRelay publishes broadcasts to other instances.
func WithRelay(relay Relay) Option {
	return func(rr *RoomRegistry) { rr.relay = relay }
}

// WithClock overrides the clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(rr *RoomRegistry) { rr.now = now }
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry(logger *slog.Logger, opts ...Option) *RoomRegistry {
	rr := &RoomRegistry{
		rooms:          make(map[string]*Room),
		clients:        make(map[string]string),
		palette:        DefaultPalette,
		publishTimeout: 2 * time.Second,
		now:            time.Now,
		observers:      make(map[int]func(RoomEvent)),
		logger:         logger,
	}
	for _, opt := range opts {
		opt(rr)
	}
	return rr
}

// Subscribe registers fn for room lifecycle events and returns a function
// that removes it.
func (rr *RoomRegistry) Subscribe(fn func(RoomEvent)) (unsubscribe func()) {
	rr.observersMu.Lock()
	id := rr.nextObserver
	rr.nextObserver++
	rr.observers[id] = fn
	rr.observersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			rr.observersMu.Lock()
			delete(rr.observers, id)
			rr.observersMu.Unlock()
		})
	}
}

func (rr *RoomRegistry) notify(events []RoomEvent) {
	if len(events) == 0 {
		return
	}
	rr.observersMu.Lock()
	fns := make([]func(RoomEvent), 0, len(rr.observers))
	for _, fn := range rr.observers {
		fns = append(fns, fn)
	}
	rr.observersMu.Unlock()

	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// Join moves the connection into the page's room, leaving its previous room
// first. The joiner receives current-users, everyone else user-joined.
func (rr *RoomRegistry) Join(c *Client, req JoinPayload) UserPresence {
	var events []RoomEvent
	var relayed []outbound

	rr.mutex.Lock()
	if oldPageID, ok := rr.clients[c.ID]; ok {
		ev, out := rr.leaveLocked(c, oldPageID)
		events = append(events, ev...)
		relayed = append(relayed, out...)
	}

	room, ok := rr.rooms[req.PageID]
	if !ok {
		room = &Room{
			PageID:      req.PageID,
			WorkspaceID: req.WorkspaceID,
			members:     make(map[string]*member),
		}
		rr.rooms[req.PageID] = room
		events = append(events, RoomEvent{Kind: RoomCreated, PageID: req.PageID})
		rr.logger.Debug("room created", "page_id", req.PageID)
	}

	presence := UserPresence{
		UserID:       req.User.ID,
		Name:         req.User.Name,
		Email:        req.User.Email,
		AvatarURL:    req.User.AvatarURL,
		ConnectionID: c.ID,
		Color:        rr.nextColor(),
	}

	others := room.users(c.ID)
	rr.joinCounter++
	room.mutex.Lock()
	room.members[c.ID] = &member{client: c, presence: presence, joined: rr.joinCounter}
	room.mutex.Unlock()
	rr.clients[c.ID] = req.PageID

	if data, err := Encode(EventCurrentUsers, CurrentUsersPayload{PageID: req.PageID, Users: others}); err == nil {
		c.Deliver(data)
	}
	if data, err := Encode(EventUserJoined, presence); err == nil {
		room.broadcast(data, c.ID, rr.logger)
		relayed = append(relayed, outbound{pageID: req.PageID, data: data})
	}
	rr.mutex.Unlock()

	rr.logger.Info("user joined page", "page_id", req.PageID, "conn_id", c.ID, "user_id", req.User.ID, "color", presence.Color)
	rr.publishAll(relayed)
	rr.notify(events)
	return presence.clone()
}

// Leave removes the connection from the page's room. It is a no-op when the
// connection is not in that room.
func (rr *RoomRegistry) Leave(c *Client, pageID string) bool {
	rr.mutex.Lock()
	current, ok := rr.clients[c.ID]
	if !ok || current != pageID {
		rr.mutex.Unlock()
		return false
	}
	events, relayed := rr.leaveLocked(c, pageID)
	rr.mutex.Unlock()

	rr.publishAll(relayed)
	rr.notify(events)
	return true
}

// Disconnect leaves the connection's current room, if any, and closes its
// send channel.
func (rr *RoomRegistry) Disconnect(c *Client) {
	rr.mutex.Lock()
	var events []RoomEvent
	var relayed []outbound
	if pageID, ok := rr.clients[c.ID]; ok {
		events, relayed = rr.leaveLocked(c, pageID)
	}
	rr.mutex.Unlock()

	c.Close()
	rr.publishAll(relayed)
	rr.notify(events)
}

// leaveLocked requires rr.mutex. It returns the lifecycle events and the
// user-left message for the relay.
func (rr *RoomRegistry) leaveLocked(c *Client, pageID string) ([]RoomEvent, []outbound) {
	delete(rr.clients, c.ID)

	room, ok := rr.rooms[pageID]
	if !ok {
		return nil, nil
	}

	room.mutex.Lock()
	m, ok := room.members[c.ID]
	if ok {
		delete(room.members, c.ID)
	}
	remaining := len(room.members)
	room.mutex.Unlock()
	if !ok {
		return nil, nil
	}

	rr.logger.Info("user left page", "page_id", pageID, "conn_id", c.ID, "user_id", m.presence.UserID)

	var relayed []outbound
	data, err := Encode(EventUserLeft, UserLeftPayload{
		PageID:       pageID,
		ConnectionID: c.ID,
		UserID:       m.presence.UserID,
	})
	if err == nil {
		room.broadcast(data, c.ID, rr.logger)
		relayed = append(relayed, outbound{pageID: pageID, data: data})
	}
	if remaining > 0 {
		return nil, relayed
	}

	delete(rr.rooms, pageID)
	rr.logger.Debug("room destroyed", "page_id", pageID)
	return []RoomEvent{{Kind: RoomDestroyed, PageID: pageID}}, relayed
}

func (rr *RoomRegistry) nextColor() string {
	color := rr.palette[rr.colorCounter%uint64(len(rr.palette))]
	rr.colorCounter++
	return color
}

// roomOf returns the room the connection occupies if it is pageID.
func (rr *RoomRegistry) roomOf(c *Client, pageID string) (*Room, bool) {
	rr.mutex.RLock()
	defer rr.mutex.RUnlock()

	current, ok := rr.clients[c.ID]
	if !ok || current != pageID {
		return nil, false
	}
	room, ok := rr.rooms[pageID]
	return room, ok
}

// BroadcastEdit relays edited blocks to the other occupants of the page. A
// connection alone in its room gets no echo. It returns the number of local
// recipients.
func (rr *RoomRegistry) BroadcastEdit(c *Client, pageID string, list []blocks.Block, userID string) int {
	room, ok := rr.roomOf(c, pageID)
	if !ok {
		rr.logger.Debug("edit for a room the connection is not in", "page_id", pageID, "conn_id", c.ID)
		return 0
	}
	if room.size() < 2 && rr.relay == nil {
		return 0
	}

	data, err := Encode(EventContentUpdated, ContentUpdatedPayload{
		PageID:    pageID,
		Blocks:    list,
		UserID:    userID,
		Timestamp: rr.now().UnixMilli(),
	})
	if err != nil {
		rr.logger.Error("failed to encode content update", "page_id", pageID, "error", err)
		return 0
	}
	return rr.relayToOthers(room, c, data)
}

// CursorMove records the connection's cursor and relays it. Last value wins.
func (rr *RoomRegistry) CursorMove(c *Client, pageID string, pos CursorPosition) int {
	room, m, ok := rr.memberOf(c, pageID)
	if !ok {
		return 0
	}
	room.mutex.Lock()
	p := pos
	m.presence.CursorPosition = &p
	userID := m.presence.UserID
	room.mutex.Unlock()

	data, err := Encode(EventCursorMoved, CursorMovedPayload{
		PageID:       pageID,
		ConnectionID: c.ID,
		UserID:       userID,
		Position:     pos,
	})
	if err != nil {
		return 0
	}
	return rr.relayToOthers(room, c, data)
}

// SelectionChange records the connection's selection and relays it.
func (rr *RoomRegistry) SelectionChange(c *Client, pageID string, sel Selection) int {
	room, m, ok := rr.memberOf(c, pageID)
	if !ok {
		return 0
	}
	room.mutex.Lock()
	s := sel
	m.presence.Selection = &s
	userID := m.presence.UserID
	room.mutex.Unlock()

	data, err := Encode(EventSelectionChanged, SelectionChangedPayload{
		PageID:       pageID,
		ConnectionID: c.ID,
		UserID:       userID,
		Selection:    sel,
	})
	if err != nil {
		return 0
	}
	return rr.relayToOthers(room, c, data)
}

// TypingStart relays a typing indicator. Typing state is not retained here;
// the transport expires indicators that are never stopped.
func (rr *RoomRegistry) TypingStart(c *Client, pageID, blockID string) int {
	return rr.typing(c, pageID, blockID, EventUserTyping)
}

// TypingStop relays the end of a typing indicator.
func (rr *RoomRegistry) TypingStop(c *Client, pageID, blockID string) int {
	return rr.typing(c, pageID, blockID, EventUserStoppedTyping)
}

func (rr *RoomRegistry) typing(c *Client, pageID, blockID, event string) int {
	room, m, ok := rr.memberOf(c, pageID)
	if !ok {
		return 0
	}
	room.mutex.RLock()
	userID := m.presence.UserID
	room.mutex.RUnlock()

	data, err := Encode(event, UserTypingPayload{
		PageID:       pageID,
		ConnectionID: c.ID,
		UserID:       userID,
		BlockID:      blockID,
	})
	if err != nil {
		return 0
	}
	return rr.relayToOthers(room, c, data)
}

func (rr *RoomRegistry) memberOf(c *Client, pageID string) (*Room, *member, bool) {
	room, ok := rr.roomOf(c, pageID)
	if !ok {
		return nil, nil, false
	}
	room.mutex.RLock()
	m, ok := room.members[c.ID]
	room.mutex.RUnlock()
	return room, m, ok
}

func (rr *RoomRegistry) relayToOthers(room *Room, c *Client, data []byte) int {
	delivered := room.broadcast(data, c.ID, rr.logger)
	rr.publishAll([]outbound{{pageID: room.PageID, data: data}})
	return delivered
}

// DeliverRemote hands a broadcast received from another instance to every
// local occupant of the page.
func (rr *RoomRegistry) DeliverRemote(pageID string, data []byte) int {
	rr.mutex.RLock()
	room, ok := rr.rooms[pageID]
	rr.mutex.RUnlock()
	if !ok {
		return 0
	}
	return room.broadcast(data, "", rr.logger)
}

func (rr *RoomRegistry) publishAll(messages []outbound) {
	if rr.relay == nil {
		return
	}
	for _, msg := range messages {
		ctx, cancel := context.WithTimeout(context.Background(), rr.publishTimeout)
		if err := rr.relay.Publish(ctx, msg.pageID, msg.data); err != nil {
			rr.logger.Warn("relay publish failed", "page_id", msg.pageID, "error", err)
		}
		cancel()
	}
}

// Users returns the presences in a page's room in join order.
func (rr *RoomRegistry) Users(pageID string) []UserPresence {
	rr.mutex.RLock()
	room, ok := rr.rooms[pageID]
	rr.mutex.RUnlock()
	if !ok {
		return []UserPresence{}
	}
	return room.users("")
}

// RoomCount returns the number of live rooms.
func (rr *RoomRegistry) RoomCount() int {
	rr.mutex.RLock()
	defer rr.mutex.RUnlock()
	return len(rr.rooms)
}

// PageOf returns the page a connection is in.
func (rr *RoomRegistry) PageOf(c *Client) (string, bool) {
	rr.mutex.RLock()
	defer rr.mutex.RUnlock()
	pageID, ok := rr.clients[c.ID]
	return pageID, ok
}
