package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventName identifies a channel event. Every websocket text frame carries one
// Envelope whose Data shape is fixed by the event name.
type EventName string

const (
	// client -> server
	EventJoinRoom    EventName = "join_room"
	EventUserOnline  EventName = "user_online"
	EventSendMessage EventName = "send_message"

	// server -> client
	EventReceiveMessage EventName = "receive_message"
	EventOnlineUsers    EventName = "online_users"
	EventSendError      EventName = "send_error"
	EventError          EventName = "error"
)

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnknownEvent   = errors.New("unknown event")
)

type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientEvent is one of JoinRoom, UserOnline or SendMessage.
type ClientEvent interface {
	Name() EventName
}

type JoinRoom struct {
	Room string
}

func (JoinRoom) Name() EventName { return EventJoinRoom }

// UserOnline announces the identity of a connection. UserID is zero when the
// payload was omitted, which only authenticated connections may do.
type UserOnline struct {
	UserID int
}

func (UserOnline) Name() EventName { return EventUserOnline }

// SendMessage accepts both the legacy field names (message, sender) and the
// persisted ones (content, senderName).
type SendMessage struct {
	Room        string          `json:"room"`
	Message     string          `json:"message,omitempty"`
	Content     string          `json:"content,omitempty"`
	Sender      string          `json:"sender,omitempty"`
	SenderName  string          `json:"senderName,omitempty"`
	SenderID    int             `json:"senderId"`
	Timestamp   json.RawMessage `json:"timestamp,omitempty"`
	ClientMsgID string          `json:"clientMsgId,omitempty"`
}

func (SendMessage) Name() EventName { return EventSendMessage }

// ToCreate maps the wire payload onto the gateway input.
func (s SendMessage) ToCreate() *MessageCreate {
	content := s.Message
	if content == "" {
		content = s.Content
	}
	name := s.Sender
	if name == "" {
		name = s.SenderName
	}
	return &MessageCreate{
		Room:       s.Room,
		SenderID:   s.SenderID,
		SenderName: name,
		Content:    content,
	}
}

// SendError is delivered only to the connection whose send failed.
type SendError struct {
	Room        string `json:"room"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
	Message     string `json:"message"`
}

// ErrorEvent reports a rejected event.
type ErrorEvent struct {
	Event   EventName `json:"event,omitempty"`
	Message string    `json:"message"`
}

// DecodeClientEvent parses one inbound frame into its typed variant.
func DecodeClientEvent(raw []byte) (ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch env.Event {
	case EventJoinRoom:
		var room string
		if err := json.Unmarshal(env.Data, &room); err != nil {
			return nil, fmt.Errorf("%w: join_room expects a room string", ErrMalformedEvent)
		}
		room = strings.TrimSpace(room)
		if room == "" {
			return nil, fmt.Errorf("%w: room is required", ErrMalformedEvent)
		}
		return JoinRoom{Room: room}, nil

	case EventUserOnline:
		if isAbsent(env.Data) {
			return UserOnline{}, nil
		}
		var userID int
		if err := json.Unmarshal(env.Data, &userID); err != nil {
			return nil, fmt.Errorf("%w: user_online expects an integer user id", ErrMalformedEvent)
		}
		if userID <= 0 {
			return nil, fmt.Errorf("%w: user id must be positive", ErrMalformedEvent)
		}
		return UserOnline{UserID: userID}, nil

	case EventSendMessage:
		var msg SendMessage
		if isAbsent(env.Data) {
			return nil, fmt.Errorf("%w: send_message requires a payload", ErrMalformedEvent)
		}
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return msg, nil

	case "":
		return nil, fmt.Errorf("%w: event name is required", ErrMalformedEvent)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Event)
}

// EncodeEvent wraps data in an envelope ready to be written as one frame.
func EncodeEvent(name EventName, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", name, err)
	}
	return json.Marshal(Envelope{Event: name, Data: payload})
}

func isAbsent(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
