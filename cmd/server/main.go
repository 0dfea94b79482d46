package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"starbase/server/config"
	"starbase/server/handlers"
	"starbase/server/logger"
	"starbase/server/persistence"
	"starbase/server/services"
)

func main() {
	configFile := flag.String("config", "server.yaml", "Path to server config YAML file")
	flag.Parse()

	// Initialize logger first (before any logging)
	logConfig, err := logger.LoadConfig(*configFile)
	logger.Initialize(logConfig)
	if err != nil {
		logger.Warning("Failed to load logging config, using defaults", "path", *configFile, "error", err)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Error("Failed to load server config", "path", *configFile, "error", err)
		os.Exit(1)
	}

	db, err := openStorage(cfg.Storage)
	if err != nil {
		logger.Error("Failed to initialize persistence", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	builders := services.NewBuilderService(db)
	builders.SetBcryptCost(cfg.Auth.BcryptCost)
	world, err := services.NewWorldService(cfg.Station.Name, cfg.StationOptions(), builders, db)
	if err != nil {
		logger.Error("Failed to load station", "station", cfg.Station.Name, "error", err)
		os.Exit(1)
	}
	clientManager := handlers.NewClientManager()
	world.SetBroadcaster(clientManager.BroadcastRecord)

	if len(cfg.WebSocket.AllowedOrigins) == 0 {
		logger.Info("WebSocket CORS policy", "mode", "same-origin")
	} else {
		logger.Info("WebSocket CORS policy", "allowed_origins", cfg.WebSocket.AllowedOrigins)
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			allowed := cfg.WebSocket.IsOriginAllowed(origin, r.Host)
			if !allowed {
				logger.Warning("WebSocket connection rejected - origin not allowed",
					"origin", origin,
					"host", r.Host,
					"remote_addr", r.RemoteAddr)
			}
			return allowed
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warning("Failed to upgrade connection", "remote_addr", r.RemoteAddr, "error", err)
			return
		}
		defer conn.Close()

		handlers.HandleClientConnection(conn, cfg.WebSocket.MaxMessageSize, builders, world, clientManager)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go maintainPool(ctx, world, cfg.Pool)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Station server listening", "address", cfg.ListenAddr,
			"station", cfg.Station.Name, "width", cfg.Station.Width, "height", cfg.Station.Height)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warning("Graceful shutdown failed", "error", err)
	}
}

// openStorage picks the backend named in the config
func openStorage(cfg config.StorageConfig) (persistence.Storage, error) {
	switch cfg.Driver {
	case "postgres":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "host=localhost user=starbase password=starbase dbname=starbase sslmode=disable"
		}
		logger.Info("Using PostgreSQL persistence")
		return persistence.NewPostgresStore(dsn)
	case "sqlite":
		logger.Info("Using SQLite persistence", "path", cfg.Path)
		return persistence.NewSQLiteStore(cfg.Path)
	default:
		logger.Info("Using JSON persistence", "path", cfg.Path)
		return persistence.NewJSONStore(cfg.Path)
	}
}

// maintainPool trims released pieces on a fixed tick
func maintainPool(ctx context.Context, world *services.WorldService, cfg config.PoolConfig) {
	if cfg.TrimIntervalSeconds <= 0 || cfg.TrimBatch <= 0 {
		return
	}

	ticker := time.NewTicker(time.Duration(cfg.TrimIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dropped := world.Maintain(cfg.TrimBatch); dropped > 0 {
				logger.Debug("Trimmed piece pool", "dropped", dropped)
			}
		}
	}
}
