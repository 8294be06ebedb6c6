package handlers

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/pliu/securemsg/internal/chat"
	"github.com/pliu/securemsg/internal/middleware"
	"github.com/pliu/securemsg/internal/store"
	"github.com/pliu/securemsg/internal/ws"
)

// HubRoute is where the realtime channel is served.
const HubRoute = "/chatHub"

type Dependencies struct {
	Store       store.Store
	Chat        *chat.Service
	Hub         *ws.Hub
	Tokens      TokenIssuer
	Verifier    middleware.TokenVerifier
	CORSOrigins []string
}

// NewRouter wires every HTTP endpoint and the realtime channel.
func NewRouter(deps Dependencies) http.Handler {
	authHandler := &AuthHandler{Store: deps.Store, Tokens: deps.Tokens}
	userHandler := &UserHandler{Store: deps.Store}
	messageHandler := &MessageHandler{Chat: deps.Chat}
	healthHandler := &HealthHandler{Hub: deps.Hub}
	requireAuth := middleware.AuthMiddleware(deps.Verifier)

	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler.Check).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/user/register", userHandler.Register).Methods("POST")
	api.HandleFunc("/auth/register", userHandler.Register).Methods("POST")
	api.HandleFunc("/user", userHandler.ListUsers).Methods("GET")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")
	api.HandleFunc("/auth/{id:-?[0-9]+}", authHandler.GetPublicKey).Methods("GET")

	messages := api.PathPrefix("/message").Subrouter()
	messages.Use(requireAuth)
	messages.HandleFunc("/history/{recipientId:-?[0-9]+}", messageHandler.GetHistory).Methods("GET")
	messages.HandleFunc("/sentTo/{recipientId:-?[0-9]+}", messageHandler.GetSentTo).Methods("GET")
	messages.HandleFunc("/receivedFrom/{senderId:-?[0-9]+}", messageHandler.GetReceivedFrom).Methods("GET")

	r.Handle(HubRoute, requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(deps.Hub, w, r)
	}))).Methods("GET")

	// CORS wraps the router so preflight requests never hit method matching.
	var handler http.Handler = r
	handler = cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	})(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = chimiddleware.Recoverer(handler)
	handler = chimiddleware.RequestID(handler)
	return handler
}
