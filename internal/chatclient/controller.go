package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"spiritualconnect/internal/models"
	"spiritualconnect/internal/rooms"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrRoomNotOpen  = errors.New("conversation is not open")
	ErrEmptyMessage = errors.New("message is empty")
	ErrInvalidPeer  = errors.New("invalid peer")
)

const writeWait = 10 * time.Second

type Config struct {
	// ServerURL is the http(s) base of the chat server.
	ServerURL string
	Token     string
	UserID    int

	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Handlers receive server events on the controller's read goroutine.
type Handlers struct {
	OnMessage   func(models.Message)
	OnPresence  func([]models.OnlineUser)
	OnSendError func(models.SendError)
	OnError     func(models.ErrorEvent)
	OnConnect   func()
}

// Controller keeps one user's channel connection alive and tracks the
// conversations it has opened. A message is shown only when the server
// broadcasts it back; Send never echoes locally.
type Controller struct {
	cfg      Config
	handlers Handlers
	http     *resty.Client
	dialer   *websocket.Dialer
	log      *zap.Logger

	mu    sync.Mutex // guards conn and rooms, and serializes writes
	conn  *websocket.Conn
	rooms map[string]struct{}
}

func New(cfg Config, handlers Handlers, log *zap.Logger) *Controller {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 500 * time.Millisecond
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.ServerURL, "/")).
		SetTimeout(15 * time.Second)
	if cfg.Token != "" {
		httpClient.SetAuthToken(cfg.Token)
	}

	return &Controller{
		cfg:      cfg,
		handlers: handlers,
		http:     httpClient,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:      log,
		rooms:    make(map[string]struct{}),
	}
}

// Run connects and keeps reconnecting with backoff until ctx ends. Every
// (re)connect announces the user and re-joins every opened room.
func (c *Controller) Run(ctx context.Context) error {
	wait := c.cfg.ReconnectMin

	for {
		conn, err := c.connect(ctx)
		if err == nil {
			wait = c.cfg.ReconnectMin
			c.readLoop(ctx, conn)
			c.detach(conn)
		} else {
			c.log.Warn("connect failed", zap.Error(err), zap.Duration("retry_in", wait))
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = nextBackoff(wait, c.cfg.ReconnectMax)
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func (c *Controller) connect(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := websocketURL(c.cfg.ServerURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, _, err := c.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}

	if err := c.attach(conn); err != nil {
		conn.Close()
		return nil, err
	}

	c.log.Info("connected", zap.String("url", wsURL))
	if c.handlers.OnConnect != nil {
		c.handlers.OnConnect()
	}
	return conn, nil
}

// attach announces the user and rejoins every open room before the
// connection becomes visible to Send.
func (c *Controller) attach(conn *websocket.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var announce any
	if c.cfg.UserID > 0 {
		announce = c.cfg.UserID
	}
	if err := writeEvent(conn, models.EventUserOnline, announce); err != nil {
		return err
	}
	for room := range c.rooms {
		if err := writeEvent(conn, models.EventJoinRoom, room); err != nil {
			return err
		}
	}
	c.conn = conn
	return nil
}

func (c *Controller) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *Controller) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("connection lost", zap.Error(err))
			}
			return
		}
		c.dispatch(raw)
	}
}

func (c *Controller) dispatch(raw []byte) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Warn("unreadable frame", zap.Error(err))
		return
	}

	var err error
	switch env.Event {
	case models.EventReceiveMessage:
		var msg models.Message
		if err = json.Unmarshal(env.Data, &msg); err == nil && c.handlers.OnMessage != nil {
			c.handlers.OnMessage(msg)
		}
	case models.EventOnlineUsers:
		var users []models.OnlineUser
		if err = json.Unmarshal(env.Data, &users); err == nil && c.handlers.OnPresence != nil {
			c.handlers.OnPresence(users)
		}
	case models.EventSendError:
		var sendErr models.SendError
		if err = json.Unmarshal(env.Data, &sendErr); err == nil && c.handlers.OnSendError != nil {
			c.handlers.OnSendError(sendErr)
		}
	case models.EventError:
		var evErr models.ErrorEvent
		if err = json.Unmarshal(env.Data, &evErr); err == nil && c.handlers.OnError != nil {
			c.handlers.OnError(evErr)
		}
	default:
		c.log.Debug("ignoring event", zap.String("event", string(env.Event)))
	}
	if err != nil {
		c.log.Warn("malformed event payload", zap.String("event", string(env.Event)), zap.Error(err))
	}
}

// OpenConversation joins the room shared with peerID and loads its history.
// Opening an already open conversation only reloads history.
func (c *Controller) OpenConversation(ctx context.Context, peerID int) (string, []*models.Message, error) {
	if peerID <= 0 || peerID == c.cfg.UserID {
		return "", nil, fmt.Errorf("%w: %d", ErrInvalidPeer, peerID)
	}
	room := rooms.CanonicalID(c.cfg.UserID, peerID)

	c.mu.Lock()
	_, open := c.rooms[room]
	c.rooms[room] = struct{}{}
	var joinErr error
	if !open && c.conn != nil {
		joinErr = writeEvent(c.conn, models.EventJoinRoom, room)
	}
	c.mu.Unlock()
	if joinErr != nil {
		// the read loop notices the broken connection; the rejoin happens on reconnect
		c.log.Warn("join failed", zap.String("room", room), zap.Error(joinErr))
	}

	history, err := c.History(ctx, room)
	if err != nil {
		return room, nil, err
	}
	return room, history, nil
}

// History fetches a room's messages over REST.
func (c *Controller) History(ctx context.Context, room string) ([]*models.Message, error) {
	var history []*models.Message
	var apiErr struct {
		Message string `json:"message"`
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("room", room).
		SetResult(&history).
		SetError(&apiErr).
		Get("/api/messages/room/{room}")
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to load history: status %d: %s", resp.StatusCode(), apiErr.Message)
	}
	if history == nil {
		history = []*models.Message{}
	}
	return history, nil
}

// Send submits content to an open room and returns the client message id
// that a send_error for this send will carry.
func (c *Controller) Send(ctx context.Context, room, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyMessage
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rooms[room]; !ok {
		return "", fmt.Errorf("%w: %s", ErrRoomNotOpen, room)
	}
	if c.conn == nil {
		return "", ErrNotConnected
	}

	clientMsgID := uuid.NewString()
	ts, _ := json.Marshal(time.Now().UTC())
	err := writeEvent(c.conn, models.EventSendMessage, models.SendMessage{
		Room:        room,
		Content:     content,
		SenderID:    c.cfg.UserID,
		Timestamp:   ts,
		ClientMsgID: clientMsgID,
	})
	if err != nil {
		return "", err
	}
	return clientMsgID, nil
}

// Connected reports whether a channel connection is currently up.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// OpenRooms lists the conversations that are re-joined on reconnect.
func (c *Controller) OpenRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := lo.Keys(c.rooms)
	sort.Strings(out)
	return out
}

func writeEvent(conn *websocket.Conn, name models.EventName, data any) error {
	frame, err := models.EncodeEvent(name, data)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/chat"
	return u.String(), nil
}
