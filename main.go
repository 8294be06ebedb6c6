package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pliu/securemsg/internal/auth"
	"github.com/pliu/securemsg/internal/chat"
	"github.com/pliu/securemsg/internal/config"
	"github.com/pliu/securemsg/internal/handlers"
	"github.com/pliu/securemsg/internal/store/sqlstore"
	"github.com/pliu/securemsg/internal/ws"
)

var addr = flag.String("addr", "", "http service address (overrides ADDR)")

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	// Initialize Database
	store, err := sqlstore.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Database.Driver, err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWT.Key, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.Expiration)
	if err != nil {
		log.Fatalf("Failed to configure token issuer: %v", err)
	}

	// Initialize WebSocket Hub
	chatService := chat.NewService(store)
	mode := ws.DeliverToUser
	if cfg.Realtime.DeliverToConversation {
		mode = ws.DeliverToConversation
	}
	hub := ws.NewHub(chatService, ws.Options{
		Mode:           mode,
		AllowedOrigins: cfg.CORSOrigins,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		RateBurst:      cfg.Realtime.RateBurst,
		RateInterval:   cfg.Realtime.RateInterval,
	})
	go hub.Run()

	router := handlers.NewRouter(handlers.Dependencies{
		Store:       store,
		Chat:        chatService,
		Hub:         hub,
		Tokens:      tokens,
		Verifier:    tokens,
		CORSOrigins: cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Println("Starting server on", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		log.Printf("Hub shutdown error: %v", err)
	}
	if err := store.Close(); err != nil {
		log.Printf("Store close error: %v", err)
	}
	log.Println("Server stopped")
}
