package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"wbs/collab-client/client"
	"wbs/collab-client/clock"
	"wbs/collab-client/config"
	"wbs/collab-client/db"
	"wbs/collab-client/handlers"
	"wbs/collab-client/services"
	"wbs/collab-client/utils"
)

type flags struct {
	configPath  string
	port        string
	projectID   string
	googleToken string
}

func parseFlags(args []string) (flags, error) {
	var f flags
	flagSet := pflag.NewFlagSet("wbs-collab", pflag.ContinueOnError)
	flagSet.StringVar(&f.configPath, "config", "", "YAML config file (overrides CONFIG_FILE)")
	flagSet.StringVar(&f.port, "port", "", "local status API port (overrides PORT)")
	flagSet.StringVar(&f.projectID, "project", "", "project to open on start (overrides PROJECT_ID)")
	flagSet.StringVar(&f.googleToken, "google-token", "", "Google credential used when no saved session exists")
	if err := flagSet.Parse(args); err != nil {
		return f, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return f, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return f, nil
}

func (f flags) apply(cfg *config.Config) {
	if f.port != "" {
		cfg.Port = f.port
	}
	if f.projectID != "" {
		cfg.ProjectID = f.projectID
	}
	if f.googleToken != "" {
		cfg.GoogleToken = f.googleToken
	}
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err == pflag.ErrHelp {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if f.configPath != "" {
		os.Setenv("CONFIG_FILE", f.configPath)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	f.apply(cfg)

	// Initialize logger
	logger := utils.NewLogger(cfg.LogLevel)

	// Open local state
	database, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	store := db.NewStore(database)
	defer store.Close()

	ctx := context.Background()
	realClock := clock.Real()
	api := client.New(cfg.APIURL, cfg.HTTPTimeout)

	// Sign in
	auth := services.NewAuthService(api, store, realClock, logger)
	user, err := auth.Restore(ctx)
	if err != nil {
		if cfg.GoogleToken == "" {
			logger.Fatal("No usable saved session; set GOOGLE_TOKEN or pass --google-token", "error", err)
		}
		user, err = auth.Login(ctx, cfg.GoogleToken)
		if err != nil {
			logger.Fatal("Failed to sign in", "error", err)
		}
	}

	// Optional presence mirror
	var mirror services.PresenceSink
	if cfg.RedisURL != "" {
		redisClient, err := services.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Warn("Presence mirror disabled", "error", err)
		} else {
			defer redisClient.Close()
			presenceMirror := services.NewRedisPresenceMirror(redisClient, logger)
			presenceMirror.SetPresenceTTL(cfg.PresenceTTL)
			mirror = presenceMirror
		}
	}

	// Initialize services
	wbsService := services.NewWBSService(api, realClock, logger)
	workspace := services.NewWorkspace(services.WorkspaceOptions{
		WSURL:             cfg.WSURL,
		Clock:             realClock,
		ReconnectDelay:    cfg.ReconnectDelay,
		HeartbeatInterval: cfg.HeartbeatInterval,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		Mirror:            mirror,
	}, auth, wbsService, logger)
	projects := services.NewProjectService(api, store, realClock, logger)
	projects.OnSelect(workspace.Activate)

	if cfg.ProjectID != "" {
		if err := store.Set(ctx, db.KeyCurrentProject, cfg.ProjectID); err != nil {
			logger.Warn("Failed to save startup project", "error", err)
		}
	}
	if _, err := projects.LoadProjects(ctx); err != nil {
		logger.Error("Failed to open a project", "error", err)
	}

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(
		handlers.NewSessionHandler(workspace, logger),
		handlers.NewWBSHandler(wbsService, projects, logger),
		cfg.StatusAPISecret,
		logger,
	)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting collaboration agent", "port", cfg.Port, "email", user.Email)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Leave the project before the server goes away
	workspace.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Agent exited")
}
