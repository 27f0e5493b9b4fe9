package realtime

import (
	"context"
	"net/http"

	"spiritualconnect/internal/middleware"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// WebSocketHandler upgrades /ws/chat requests and attaches them to the hub.
type WebSocketHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewWebSocketHandler(hub *Hub, log *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are already filtered by CORSMiddleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// HandleConnection binds the connection to the token's user when the
// request was authenticated.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	var userID int
	var userName string
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		userID = claims.UserID
		userName = claims.Name
	}

	ctx, span := middleware.StartSpan(r.Context(), "WebSocket.Connect",
		attribute.Int("user.id", userID),
	)
	defer span.End()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		middleware.AddSpanError(ctx, err)
		return
	}

	client := h.hub.NewClient(conn, userID, userName)
	if !h.hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}
	span.SetAttributes(attribute.String("conn.id", client.ID))

	// The request context and its spans end when this handler returns. The
	// connection keeps the values only, and its event spans link back here.
	client.connectSpan = span.SpanContext()
	connCtx, cancel := context.WithCancel(middleware.DetachSpan(context.WithoutCancel(r.Context())))
	go client.WritePump()
	go func() {
		defer cancel()
		client.ReadPump(connCtx)
	}()

	h.log.Info("websocket connection established",
		zap.String("conn_id", client.ID),
		zap.Int("user_id", userID),
	)
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.HandleConnection(w, r)
}
