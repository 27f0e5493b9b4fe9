package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"spiritualconnect/internal/middleware"
	"spiritualconnect/internal/models"
	"spiritualconnect/internal/rooms"
	"spiritualconnect/internal/services/chat"
	"spiritualconnect/internal/services/presence"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MessageCreator persists a message and publishes it back through the hub.
type MessageCreator interface {
	CreateMessage(ctx context.Context, in *models.MessageCreate) (*models.Message, error)
}

// UserDirectory attaches display fields to online user ids.
type UserDirectory interface {
	FindOnlineUsers(ctx context.Context, ids []int) ([]models.OnlineUser, error)
}

type Options struct {
	SendTimeout     time.Duration
	SendBuffer      int
	MaxMessageBytes int64
}

// Hub multiplexes rooms and presence over websocket connections.
//
// One goroutine (run) owns connection and subscription state; every mutation
// arrives through a channel and runs to completion before the next one.
// Presence snapshots are assembled by a second goroutine so directory lookups
// never stall the loop.
type Hub struct {
	clients map[string]*Client          // connection id -> client
	rooms   map[string]map[*Client]bool // room -> subscribers
	mu      sync.RWMutex                // guards clients and rooms for readers outside the loop

	register   chan *Client
	unregister chan *Client
	join       chan *roomJoin
	announce   chan *announcement
	broadcast  chan *BroadcastMessage
	direct     chan *directMessage

	registry        *presence.Registry
	messages        MessageCreator
	directory       UserDirectory
	presenceChanged chan struct{}

	opts Options
	log  *zap.Logger

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// BroadcastMessage is a frame for every subscriber of Room, or for every
// connection when Room is empty.
type BroadcastMessage struct {
	Room    string
	Message []byte
}

type roomJoin struct {
	client *Client
	room   string
}

type announcement struct {
	client *Client
	userID int
}

type directMessage struct {
	client  *Client
	message []byte
}

func NewHub(registry *presence.Registry, messages MessageCreator, directory UserDirectory, opts Options, log *zap.Logger) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	return &Hub{
		clients:         make(map[string]*Client),
		rooms:           make(map[string]map[*Client]bool),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		join:            make(chan *roomJoin),
		announce:        make(chan *announcement),
		broadcast:       make(chan *BroadcastMessage, 256),
		direct:          make(chan *directMessage, 64),
		registry:        registry,
		messages:        messages,
		directory:       directory,
		presenceChanged: make(chan struct{}, 1),
		opts:            opts,
		log:             log,
		done:            make(chan struct{}),
	}
}

// Start runs the event loop and the presence notifier.
func (h *Hub) Start() {
	h.wg.Add(2)
	go h.run()
	go h.presenceLoop()
	h.log.Info("realtime hub started")
}

func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.done:
			return

		case c := <-h.register:
			h.handleRegister(c)

		case c := <-h.unregister:
			h.handleUnregister(c)

		case j := <-h.join:
			h.handleJoin(j)

		case a := <-h.announce:
			h.handleAnnounce(a)

		case msg := <-h.broadcast:
			h.handleBroadcast(msg)

		case d := <-h.direct:
			h.handleDirect(d)
		}
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Debug("connection registered",
		zap.String("conn_id", c.ID),
		zap.Int("user_id", c.UserID),
		zap.Int("connections", total),
	)
}

// handleUnregister drops the connection, its subscriptions and its presence
// entry. Presence is rebroadcast only when the user's last connection left.
func (h *Hub) handleUnregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	for room := range c.rooms {
		if subs, ok := h.rooms[room]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.rooms = nil
	close(c.Send)
	h.mu.Unlock()

	dep, ok := h.registry.Unregister(c.ID)
	h.log.Debug("connection unregistered",
		zap.String("conn_id", c.ID),
		zap.Bool("identified", ok),
		zap.Bool("user_offline", dep.LastConnection),
	)
	if ok && dep.LastConnection {
		h.notifyPresence()
	}
}

func (h *Hub) handleJoin(j *roomJoin) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[j.client.ID]; !ok {
		return
	}
	if h.rooms[j.room] == nil {
		h.rooms[j.room] = make(map[*Client]bool)
	}
	h.rooms[j.room][j.client] = true
	j.client.rooms[j.room] = struct{}{}

	h.log.Debug("joined room",
		zap.String("conn_id", j.client.ID),
		zap.String("room", j.room),
		zap.Int("subscribers", len(h.rooms[j.room])),
	)
}

func (h *Hub) handleAnnounce(a *announcement) {
	h.mu.RLock()
	_, ok := h.clients[a.client.ID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	if prev, ok := h.registry.UserFor(a.client.ID); ok && prev != a.userID {
		h.log.Info("connection re-announced as another user",
			zap.String("conn_id", a.client.ID),
			zap.Int("previous_user_id", prev),
			zap.Int("user_id", a.userID),
		)
	}
	h.registry.Register(a.userID, a.client.ID)
	h.log.Debug("user online",
		zap.String("conn_id", a.client.ID),
		zap.Int("user_id", a.userID),
		zap.Int("user_connections", h.registry.ConnectionCount(a.userID)),
	)
	h.notifyPresence()
}

// handleBroadcast fans a frame out synchronously, so every subscriber queues
// broadcasts in the same order. Subscribers with a full buffer are dropped.
func (h *Hub) handleBroadcast(msg *BroadcastMessage) {
	var targets []*Client

	h.mu.RLock()
	if msg.Room == "" {
		targets = lo.Values(h.clients)
	} else {
		targets = lo.Keys(h.rooms[msg.Room])
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, c := range targets {
		select {
		case c.Send <- msg.Message:
		default:
			slow = append(slow, c)
		}
	}

	for _, c := range slow {
		h.log.Warn("send buffer full, closing connection", zap.String("conn_id", c.ID))
		h.handleUnregister(c)
	}
}

func (h *Hub) handleDirect(d *directMessage) {
	h.mu.RLock()
	_, ok := h.clients[d.client.ID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case d.client.Send <- d.message:
	default:
		h.log.Warn("send buffer full, closing connection", zap.String("conn_id", d.client.ID))
		h.handleUnregister(d.client)
	}
}

// notifyPresence marks the presence snapshot dirty. Signals coalesce.
func (h *Hub) notifyPresence() {
	select {
	case h.presenceChanged <- struct{}{}:
	default:
	}
}

func (h *Hub) presenceLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.done:
			return
		case <-h.presenceChanged:
			h.broadcastPresence()
		}
	}
}

func (h *Hub) broadcastPresence() {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.SendTimeout)
	defer cancel()

	ctx, span := middleware.StartSpan(ctx, "Realtime.BroadcastPresence")
	defer span.End()

	users := h.OnlineUsers(ctx)
	span.SetAttributes(attribute.Int("presence.online", len(users)))

	payload, err := models.EncodeEvent(models.EventOnlineUsers, users)
	if err != nil {
		h.log.Error("failed to encode presence snapshot", zap.Error(err))
		return
	}
	h.enqueue(&BroadcastMessage{Message: payload})
}

// OnlineUsers returns the current presence snapshot with display fields. If
// the directory fails, bare ids are returned.
func (h *Hub) OnlineUsers(ctx context.Context) []models.OnlineUser {
	ids := h.registry.OnlineUserIDs()
	bare := lo.Map(ids, func(id int, _ int) models.OnlineUser { return models.OnlineUser{ID: id} })
	if len(ids) == 0 || h.directory == nil {
		return bare
	}

	users, err := h.directory.FindOnlineUsers(ctx, ids)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		h.log.Warn("user directory lookup failed, sending bare presence", zap.Error(err))
		return bare
	}
	return users
}

// PublishMessage broadcasts a persisted message to its room.
func (h *Hub) PublishMessage(msg *models.Message) {
	payload, err := models.EncodeEvent(models.EventReceiveMessage, msg)
	if err != nil {
		h.log.Error("failed to encode message", zap.Int64("message_id", msg.ID), zap.Error(err))
		return
	}
	h.enqueue(&BroadcastMessage{Room: msg.Room, Message: payload})
}

// Broadcast sends a raw frame to a room, or to everyone when room is empty.
func (h *Hub) Broadcast(room string, message []byte) {
	h.enqueue(&BroadcastMessage{Room: room, Message: message})
}

func (h *Hub) enqueue(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Register adds a connection. It reports false once the hub is shut down.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Join subscribes c to room. Joining twice is a no-op.
func (h *Hub) Join(c *Client, room string) {
	select {
	case h.join <- &roomJoin{client: c, room: room}:
	case <-h.done:
	}
}

// Announce records c as a connection of userID and rebroadcasts presence.
func (h *Hub) Announce(c *Client, userID int) {
	select {
	case h.announce <- &announcement{client: c, userID: userID}:
	case <-h.done:
	}
}

// SendTo queues a frame for one connection only.
func (h *Hub) SendTo(c *Client, message []byte) {
	select {
	case h.direct <- &directMessage{client: c, message: message}:
	case <-h.done:
	}
}

// HandleEvent decodes one inbound frame and applies it on behalf of c.
func (h *Hub) HandleEvent(ctx context.Context, c *Client, raw []byte) {
	ev, err := models.DecodeClientEvent(raw)
	if err != nil {
		h.log.Debug("rejected event", zap.String("conn_id", c.ID), zap.Error(err))
		h.sendError(c, "", err.Error())
		return
	}

	ctx, span := middleware.StartLinkedSpan(ctx, c.connectSpan, "Realtime.HandleEvent",
		attribute.String("conn.id", c.ID),
		attribute.String("event", string(ev.Name())),
	)
	defer span.End()

	switch e := ev.(type) {
	case models.JoinRoom:
		if !participates(c, e.Room) {
			h.sendError(c, models.EventJoinRoom, "not a participant of room "+e.Room)
			return
		}
		h.Join(c, e.Room)

	case models.UserOnline:
		h.handleUserOnline(ctx, c, e)

	case models.SendMessage:
		h.handleSendMessage(ctx, c, e)
	}
}

func (h *Hub) handleUserOnline(ctx context.Context, c *Client, e models.UserOnline) {
	userID := e.UserID
	if c.Authenticated() {
		if userID != 0 && userID != c.UserID {
			middleware.AddSpanEvent(ctx, "identity.mismatch")
			h.sendError(c, models.EventUserOnline, "user id does not match the authenticated session")
			return
		}
		userID = c.UserID
	} else if userID == 0 {
		h.sendError(c, models.EventUserOnline, "user id is required")
		return
	}

	h.Announce(c, userID)
}

// handleSendMessage persists the message; the room broadcast happens inside
// the gateway. Failures go back to the sender only.
func (h *Hub) handleSendMessage(ctx context.Context, c *Client, e models.SendMessage) {
	in := e.ToCreate()

	if c.Authenticated() {
		if in.SenderID != 0 && in.SenderID != c.UserID {
			h.sendFailure(c, e, "sender does not match the authenticated session")
			return
		}
		if !participates(c, in.Room) {
			h.sendFailure(c, e, "not a participant of room "+in.Room)
			return
		}
		in.SenderID = c.UserID
		if in.SenderName == "" {
			in.SenderName = c.UserName
		}
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.SendTimeout)
	defer cancel()

	if _, err := h.messages.CreateMessage(ctx, in); err != nil {
		middleware.AddSpanError(ctx, err)
		h.log.Warn("failed to save chat message",
			zap.String("conn_id", c.ID),
			zap.String("room", in.Room),
			zap.Error(err),
		)
		reason := "message could not be saved"
		if errors.Is(err, chat.ErrValidation) {
			reason = err.Error()
		}
		h.sendFailure(c, e, reason)
	}
}

// participates reports whether an authenticated connection belongs to room.
// Anonymous connections are not restricted.
func participates(c *Client, room string) bool {
	if !c.Authenticated() {
		return true
	}
	_, err := rooms.Peer(room, c.UserID)
	return err == nil
}

func (h *Hub) sendFailure(c *Client, e models.SendMessage, reason string) {
	payload, err := models.EncodeEvent(models.EventSendError, models.SendError{
		Room:        e.Room,
		ClientMsgID: e.ClientMsgID,
		Message:     reason,
	})
	if err != nil {
		return
	}
	h.SendTo(c, payload)
}

func (h *Hub) sendError(c *Client, event models.EventName, reason string) {
	payload, err := models.EncodeEvent(models.EventError, models.ErrorEvent{Event: event, Message: reason})
	if err != nil {
		return
	}
	h.SendTo(c, payload)
}

// Subscribers returns how many connections are subscribed to room.
func (h *Hub) Subscribers(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnlineCount returns the number of users with at least one connection.
func (h *Hub) OnlineCount() int {
	return h.registry.Len()
}

// Shutdown stops the hub and closes every connection.
func (h *Hub) Shutdown() {
	h.once.Do(func() {
		h.log.Info("shutting down realtime hub")
		close(h.done)
		h.wg.Wait()

		h.mu.Lock()
		for _, c := range h.clients {
			close(c.Send)
			if c.Conn != nil {
				_ = c.Conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(time.Second))
			}
		}
		h.clients = make(map[string]*Client)
		h.rooms = make(map[string]map[*Client]bool)
		h.mu.Unlock()

		h.log.Info("realtime hub stopped")
	})
}
