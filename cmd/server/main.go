package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pagepick/backend/api/handlers"
	"github.com/pagepick/backend/internal/config"
	"github.com/pagepick/backend/internal/fetch"
	"github.com/pagepick/backend/internal/metrics"
	"github.com/pagepick/backend/internal/repository"
	"github.com/pagepick/backend/internal/ws"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string
	var port string

	serve := func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if port != "" {
			cfg.Server.Port = port
		}
		return run(cmd.Context(), cfg)
	}

	root := &cobra.Command{
		Use:          "pagepick-server",
		Short:        "Relay element selections between page viewers",
		SilenceUsage: true,
		RunE:         serve,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config.yaml)")
	root.PersistentFlags().StringVarP(&port, "port", "p", "", "listen port (overrides server.port)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and WebSocket relay",
		RunE:  serve,
	})
	return root
}

// deps are the components the router serves.
type deps struct {
	store    repository.SelectionStore
	fetcher  fetch.Fetcher
	service  *ws.Service
	registry *prometheus.Registry
}

func run(ctx context.Context, cfg *config.Config) error {
	log := cfg.NewLogger()

	// Initialize store
	store, closeStore, err := repository.Open(ctx, repository.Options{
		Driver:        cfg.Store.Driver,
		SQLitePath:    cfg.Store.SQLitePath,
		RedisAddr:     cfg.Store.RedisAddr,
		RedisPassword: cfg.Store.RedisPassword,
		RedisDB:       cfg.Store.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()
	log.WithField("driver", cfg.Store.Driver).Info("selection store ready")

	// Initialize page fetcher
	fetcher, err := fetch.New(fetch.Config{
		Mode:      cfg.Fetch.Mode,
		Timeout:   cfg.Fetch.Timeout,
		Sanitize:  cfg.Fetch.Sanitize,
		UserAgent: cfg.Fetch.UserAgent,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	// Initialize WebSocket relay
	registry := metrics.NewRegistry()
	wsService, err := ws.NewService(ws.ServiceConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		History:        cfg.Hub.History,
		RecordPath:     cfg.Record.Path,
		Logger:         log,
		Registerer:     registry,
	})
	if err != nil {
		return err
	}
	defer wsService.Close()

	r := setupRouter(deps{
		store:    store,
		fetcher:  fetcher,
		service:  wsService,
		registry: registry,
	}, log.IsLevelEnabled(logrus.DebugLevel))

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-sigCh:
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// Hijacked WebSocket connections are not tracked by Shutdown.
	wsService.Close()
	return srv.Shutdown(shutdownCtx)
}

// setupRouter wires the HTTP surface.
func setupRouter(d deps, debug bool) *gin.Engine {
	var r *gin.Engine
	if debug {
		gin.SetMode(gin.DebugMode)
		r = gin.Default()
	} else {
		gin.SetMode(gin.ReleaseMode)
		r = gin.New()
		r.Use(gin.Recovery())
	}

	// Enable CORS for viewers served from other origins
	r.Use(corsMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"viewers": d.service.ClientCount(),
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler(d.registry)))

	api := r.Group("/api")
	{
		handlers.NewSelectionHandler(d.store).RegisterRoutes(api)
		handlers.NewPageHandler(d.fetcher).RegisterRoutes(api)
		handlers.NewWebSocketHandler(d.service).RegisterRoutes(r, api)
	}

	return r
}

// corsMiddleware returns a CORS middleware.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
