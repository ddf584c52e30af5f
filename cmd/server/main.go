package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mikeboe/deep-search/pkg/chat"
	"github.com/mikeboe/deep-search/pkg/clients"
	"github.com/mikeboe/deep-search/pkg/config"
	"github.com/mikeboe/deep-search/pkg/database"
	"github.com/mikeboe/deep-search/pkg/research"
	"github.com/mikeboe/deep-search/pkg/search"
	"github.com/mikeboe/deep-search/pkg/server"
	"github.com/mikeboe/deep-search/pkg/store/memory"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	cfg := config.Load()
	ctx := context.Background()

	model, err := clients.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to init model: %v", err)
	}
	searcher, err := search.New(cfg.SearchProvider, cfg.TavilyApiKey, cfg.SearchRPS)
	if err != nil {
		log.Fatalf("Failed to init search provider: %v", err)
	}
	tools := chat.NewSearchToolset(searcher)

	var (
		store   server.RunStore
		logs    server.LogStore
		chatSvc *chat.Service
	)
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, runs are kept in memory and chat is disabled")
		store = memory.New()
	} else {
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, int32(cfg.MaxConns))
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if err := db.InitSchema(ctx); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		store = database.NewRunStore(db)
		logs = database.NewLogStore(db)

		chatSvc, err = chat.NewService(ctx, db, cfg, tools)
		if err != nil {
			log.Fatalf("Failed to init chat service: %v", err)
		}
	}

	engine := research.NewEngine(cfg.EngineConfig(), model, searcher, store)
	svc := server.NewService(engine, store, logs)
	handler := server.NewHandler(svc, chatSvc, tools)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Allow all for dev
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Mcp-Session-Id"},
		ExposeHeaders:    []string{"Content-Length", server.RunIDHeader, "Mcp-Session-Id"},
		AllowCredentials: true,
	}))
	handler.RegisterRoutes(r)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		slog.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("Shutting down, waiting for running research to finish")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	svc.Wait()
}
