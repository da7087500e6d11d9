package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Devansh1501S/Chat-Sphere/internal/auth"
	"github.com/Devansh1501S/Chat-Sphere/internal/chat"
	"github.com/Devansh1501S/Chat-Sphere/internal/config"
	"github.com/Devansh1501S/Chat-Sphere/internal/friend"
	"github.com/Devansh1501S/Chat-Sphere/internal/gateway"
	"github.com/Devansh1501S/Chat-Sphere/internal/logging"
	"github.com/Devansh1501S/Chat-Sphere/internal/middleware"
	"github.com/Devansh1501S/Chat-Sphere/internal/store"
	"github.com/Devansh1501S/Chat-Sphere/internal/store/memory"
	"github.com/Devansh1501S/Chat-Sphere/internal/store/postgres"
	"github.com/Devansh1501S/Chat-Sphere/internal/user"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	// Redis is optional: without it the gateway delivers events on this
	// instance only.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("connect redis")
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)

	userService := user.NewService(st, tokens, log)
	userHandler := user.NewHandler(userService, log)

	chatService := chat.NewService(st, cfg.MessageWindow, log)
	chatHandler := chat.NewHandler(chatService, log)

	friendService := friend.NewService(st, log)
	friendHandler := friend.NewHandler(friendService, log)

	hub := gateway.NewHub(st, chatService, redisClient, cfg.TypingWindow, log)
	chatService.SetNotifier(hub)
	friendService.SetNotifier(hub)
	go hub.Run(ctx)

	authMiddleware := middleware.NewAuth(tokens, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLog(log))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/ws", hub.ServeWS)

		r.Get("/api/users", userHandler.List)
		r.Get("/api/users/search", userHandler.Search)

		r.Get("/api/conversations", chatHandler.ListConversations)
		r.Post("/api/conversations", chatHandler.CreateConversation)
		r.Get("/api/conversations/{conversationID}/messages", chatHandler.GetMessages)
		r.Post("/api/conversations/{conversationID}/messages", chatHandler.SendMessage)
		r.Post("/api/conversations/{conversationID}/read", chatHandler.MarkRead)

		r.Post("/api/friends/requests", friendHandler.Send)
		r.Get("/api/friends/requests", friendHandler.PendingReceived)
		r.Get("/api/friends/sent", friendHandler.Sent)
		r.Post("/api/friends/requests/{requestID}/accept", friendHandler.Accept)
		r.Post("/api/friends/requests/{requestID}/reject", friendHandler.Reject)
		r.Get("/api/friends/status", friendHandler.Status)
	})

	server := &http.Server{Addr: cfg.Addr, Handler: r}
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen and serve")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

// openStore picks the backend from configuration: Postgres when a DSN is
// set, the snapshotting in-memory store otherwise. Both satisfy store.Store
// with identical semantics.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	if cfg.DatabaseDSN != "" {
		st, err := postgres.Open(cfg.DatabaseDSN, log)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		log.Info().Msg("connected to postgres")
		return st, nil
	}

	st, err := memory.New(cfg.SnapshotPath, log)
	if err != nil {
		return nil, err
	}
	log.Info().Str("snapshot", cfg.SnapshotPath).Msg("in-memory store ready")
	return st, nil
}
