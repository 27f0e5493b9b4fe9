package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"spiritualconnect/internal/middleware"
	"spiritualconnect/internal/models"
	"spiritualconnect/internal/rooms"
	"spiritualconnect/internal/services"
	"spiritualconnect/internal/services/chat"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Handler handles HTTP requests
type Handler struct {
	messages  MessageService
	presence  PresenceService
	assistant Assistant
	health    HealthChecker // nil with the memory store
	ws        http.Handler
	log       *zap.Logger
}

func NewHandler(
	messages MessageService,
	presence PresenceService,
	assistant Assistant,
	health HealthChecker,
	ws http.Handler,
	log *zap.Logger,
) *Handler {
	return &Handler{
		messages:  messages,
		presence:  presence,
		assistant: assistant,
		health:    health,
		ws:        ws,
		log:       log,
	}
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := errorResponse{Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	respondJSON(w, status, resp)
}

// Message handlers

// GetRoomMessages returns a room's history, oldest first.
func (h *Handler) GetRoomMessages(w http.ResponseWriter, r *http.Request) {
	room := mux.Vars(r)["room"]

	if !callerParticipates(r, room) {
		respondError(w, http.StatusForbidden, "Not a participant of this room", nil)
		return
	}

	messages, err := h.messages.ListMessages(r.Context(), room)
	if err != nil {
		if errors.Is(err, chat.ErrValidation) {
			respondError(w, http.StatusBadRequest, "Room id is required", nil)
			return
		}
		h.log.Error("failed to fetch messages", zap.String("room", room), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to fetch messages", err)
		return
	}

	respondJSON(w, http.StatusOK, messages)
}

// CreateMessage persists a message. An authenticated caller may only post as
// themselves.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var in models.MessageCreate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload", err)
		return
	}

	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		if in.SenderID != 0 && in.SenderID != claims.UserID {
			respondError(w, http.StatusForbidden, "senderId does not match the authenticated user", nil)
			return
		}
		if !callerParticipates(r, in.Room) {
			respondError(w, http.StatusForbidden, "Not a participant of this room", nil)
			return
		}
		in.SenderID = claims.UserID
		if in.SenderName == "" {
			in.SenderName = claims.Name
		}
	}

	msg, err := h.messages.CreateMessage(r.Context(), &in)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, msg)
	case errors.Is(err, chat.ErrValidation):
		respondError(w, http.StatusBadRequest, "Invalid payload", err)
	case errors.Is(err, chat.ErrShuttingDown):
		respondError(w, http.StatusServiceUnavailable, "Server is shutting down", nil)
	default:
		respondError(w, http.StatusInternalServerError, "Failed to save message", err)
	}
}

// callerParticipates reports whether an authenticated caller belongs to room.
// Anonymous callers and blank rooms are left to validation.
func callerParticipates(r *http.Request, room string) bool {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || room == "" {
		return true
	}
	_, err := rooms.Peer(room, claims.UserID)
	return err == nil
}

// User handlers

// GetOnlineUsers returns the presence snapshot also pushed as online_users.
func (h *Handler) GetOnlineUsers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.presence.OnlineUsers(r.Context()))
}

// AI handlers

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

func (h *Handler) AskAssistant(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload", err)
		return
	}

	answer, err := h.assistant.Ask(r.Context(), req.Question)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, askResponse{Answer: answer})
	case errors.Is(err, services.ErrEmptyQuestion):
		respondError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, services.ErrAssistantUnavailable):
		respondError(w, http.StatusServiceUnavailable, "Assistant is not configured", nil)
	default:
		respondError(w, http.StatusBadGateway, "Assistant request failed", err)
	}
}

// Health

type healthResponse struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	Message       string `json:"message"`
	Error         string `json:"error,omitempty"`
	Connections   int    `json:"connections"`
	OnlineUsers   int    `json:"onlineUsers"`
	PendingWrites int    `json:"pendingWrites"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Database:      "memory",
		Message:       "SpiritualConnect API is running",
		Connections:   h.presence.ConnectionCount(),
		OnlineUsers:   h.presence.OnlineCount(),
		PendingWrites: h.messages.PendingWrites(),
	}

	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.health.Ping(ctx); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			resp.Status = "error"
			resp.Database = "disconnected"
			resp.Message = "API is running but database is unreachable"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Database = "connected"
	}

	respondJSON(w, http.StatusOK, resp)
}

// WebSocket endpoint

// HandleChatWebSocket attaches the caller to the realtime hub.
func (h *Handler) HandleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	h.ws.ServeHTTP(w, r)
}
