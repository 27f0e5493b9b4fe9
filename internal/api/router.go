package api

import (
	"net/http"

	"spiritualconnect/internal/middleware"

	"github.com/gorilla/mux"
)

type RouterConfig struct {
	AllowedOrigins []string
	// Tokens is nil when no signing secret is configured; every route is
	// then anonymous.
	Tokens      middleware.TokenVerifier
	RequireAuth bool
}

func SetupRoutes(h *Handler, cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()

	// Middleware runs in order: tracing, recovery, then CORS
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	authed := func(required bool) func(http.Handler) http.Handler {
		if cfg.Tokens == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.Authenticate(cfg.Tokens, required)
	}

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	// Message endpoints
	messages := api.PathPrefix("/messages").Subrouter()
	messages.Use(authed(cfg.RequireAuth))
	messages.HandleFunc("/room/{room}", h.GetRoomMessages).Methods(http.MethodGet)
	messages.HandleFunc("/room/", h.GetRoomMessages).Methods(http.MethodGet)
	messages.HandleFunc("", h.CreateMessage).Methods(http.MethodPost)

	// User endpoints
	users := api.PathPrefix("/users").Subrouter()
	users.Use(authed(cfg.RequireAuth))
	users.HandleFunc("/online", h.GetOnlineUsers).Methods(http.MethodGet)

	// AI endpoints
	ai := api.PathPrefix("/ai").Subrouter()
	ai.Use(authed(false))
	ai.HandleFunc("/ask", h.AskAssistant).Methods(http.MethodPost)

	// WebSocket route
	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(authed(cfg.RequireAuth))
	ws.HandleFunc("/chat", h.HandleChatWebSocket)

	// Preflights must match a route for the CORS middleware to answer them.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/api/health", http.StatusFound)
	})

	return r
}
