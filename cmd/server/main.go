package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rhythmhub/internal/cache"
	"rhythmhub/internal/config"
	"rhythmhub/internal/entity"
	"rhythmhub/internal/repository"
	"rhythmhub/internal/service"
	"rhythmhub/internal/transport/rest"
	"rhythmhub/internal/transport/ws"
)

func main() {
	log.Println("started")
	ctx := context.Background()

	cfg := config.Load()

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	// Ping MongoDB
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	// Redis connection
	redisAddr := cfg.RedisAddr
	// Remove redis:// prefix if present
	if len(redisAddr) > 8 && redisAddr[:8] == "redis://" {
		redisAddr = redisAddr[8:]
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	defer rdb.Close()

	// Ping Redis
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// Initialize WebSocket hub
	wsHub := ws.NewHub()
	log.Println("WebSocket hub started")

	// Initialize repositories
	multiRepo := repository.NewMultiplayerRepo(mongoClient)
	relationRepo := repository.NewRelationRepo(mongoClient)
	accountRepo := repository.NewAccountRepo(mongoClient)

	// Initialize caches
	beatmapCache := cache.NewBeatmapCache(rdb)
	restrictionCache := cache.NewRestrictionCache(rdb)

	// Initialize services
	authSvc := service.NewAuthService(accountRepo, cfg.JWTSecret)
	connSvc := service.NewConnectionService(entity.NewStore[service.ConnectionState]())
	multiSvc := service.NewMultiplayerService(
		entity.NewStore[service.ServerRoom](),
		entity.NewStore[service.ClientState](),
		multiRepo,
		relationRepo,
		service.NewBeatmapLookup(beatmapCache, multiRepo),
		service.NewRestrictionLookup(restrictionCache, multiRepo),
		service.NewRulesLegality(),
	)

	// Inject broadcaster (wsHub implements service.Broadcaster)
	connSvc.SetBroadcaster(wsHub)
	multiSvc.SetBroadcaster(wsHub)

	// Create router with container
	container := &rest.Container{
		AuthService:        authSvc,
		ConnectionService:  connSvc,
		MultiplayerService: multiSvc,
		WSHub:              wsHub,
	}

	router := rest.NewRouter(container)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.HTTPPort)
		log.Println("Endpoints:")
		log.Println("  POST /v1/auth/login")
		log.Println("  GET  /v1/rooms")
		log.Println("  GET  /v1/rooms/{id}")
		log.Println("  WS  /v1/ws/hubs/{hub}")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
