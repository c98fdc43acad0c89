package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vcv/internal/core/services"
	httphandlers "vcv/internal/handlers/http"
	"vcv/internal/infrastructure/distributed"
	"vcv/internal/infrastructure/middleware"
	"vcv/internal/infrastructure/monitoring"
	"vcv/internal/infrastructure/repositories"
	signaling "vcv/internal/infrastructure/signal"
	webrtcinfra "vcv/internal/infrastructure/webrtc"
	"vcv/pkg/config"
	"vcv/pkg/logger"
	"vcv/pkg/tracing"
)

const (
	checkInterval = 30 * time.Second
	checkTimeout  = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the SFU (signaling, media and HTTP API)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, path)
	},
}

func serve(ctx context.Context, cfg *config.Config, configPath string) error {
	zapLogger, err := logger.New(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if configPath == "" {
		log.Info("no config file found, using defaults")
	} else {
		log.Infow("loaded config", "path", configPath)
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerEndpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}

	instanceID := instanceName()
	repoFactory := repositories.NewRepositoryFactory(cfg, log)
	directory := repositories.NewCachedRoomDirectory(repoFactory.CreateRoomDirectory(), cfg.Redis.CacheTTL)

	collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	engine := webrtcinfra.NewEngine(engineConfig(cfg), log.Named("media"))
	codecs := mediaCodecs(cfg)

	directorySync := services.NewDirectorySync(directory, log)
	observers := services.MultiObserver{collector, directorySync}
	if client := repoFactory.RedisClient(); client != nil {
		bus := distributed.NewEventBus(client, cfg.Redis.KeyPrefix, instanceID, cfg.Redis.EventQueueSize, log.Named("events"))
		observers = append(observers, bus)
		go bus.Run(ctx)
		go func() {
			err := bus.Subscribe(ctx, func(e *distributed.Event) {
				log.Debugw("remote room event", "type", e.Type, "room_id", e.RoomID, "instance_id", e.InstanceID)
				directory.Invalidate(e.RoomID)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warnw("room event subscription ended", "error", err)
			}
		}()
	}

	hub := signaling.NewHub(log.Named("hub"))
	registry := services.NewRoomRegistry(
		engine,
		services.RegistryConfig{
			Codecs: codecs,
			Room: services.RoomOptions{
				Transport:          transportOptions(cfg),
				MaxIncomingBitrate: cfg.Media.MaxIncomingBitrate,
				InstanceID:         instanceID,
			},
		},
		hub,
		observers,
		log.Named("rooms"),
	)
	go directorySync.Refresh(ctx, directoryRefreshInterval(cfg), registry.List)

	gatewayOpts := []signaling.GatewayOption{signaling.WithMetrics(collector)}
	var authService *services.AuthService
	if cfg.Auth.Enabled {
		authService = services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
		gatewayOpts = append(gatewayOpts, signaling.WithTokenValidator(authService))
	}
	gateway := signaling.NewGateway(registry, hub, log.Named("gateway"), gatewayOpts...)
	wsServer := signaling.NewWebSocketServer(gateway, signaling.ServerConfig{
		PingInterval:      cfg.Signal.PingInterval,
		PongTimeout:       cfg.Signal.PongTimeout,
		WriteTimeout:      cfg.Signal.WriteTimeout,
		SendBufferSize:    cfg.Signal.SendBufferSize,
		MaxMessageSize:    cfg.Signal.MaxMessageSizeBytes,
		MessagesPerSecond: cfg.Signal.MessagesPerSecond,
		Burst:             cfg.Signal.Burst,
		AllowedOrigins:    cfg.Signal.AllowedOrigins,
	}, log.Named("ws"))

	checker := monitoring.NewHealthChecker()
	checker.AddMediaCheck(engine, codecs, checkInterval, checkTimeout)
	checker.AddDirectoryCheck(directory, checkInterval, checkTimeout)
	if client := repoFactory.RedisClient(); client != nil {
		checker.AddRedisCheck(client, checkInterval, checkTimeout)
	}
	checker.StartBackgroundChecks(ctx, func(name string, healthy bool, err error) {
		if !healthy {
			log.Warnw("health check failed", "check", name, "error", err)
		}
	})

	router := newRouter(cfg, log, routes{
		health: httphandlers.NewHealthHandler(checker),
		rooms:  httphandlers.NewRoomHandler(registry, directory),
		auth:   authService,
		ws:     wsServer.HandleWebSocket,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting vcv SFU",
			"address", cfg.Server.Address,
			"instance_id", instanceID,
			"rtc_ports", fmt.Sprintf("%d-%d", cfg.Media.RTCMinPort, cfg.Media.RTCMaxPort),
			"auth", cfg.Auth.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
		log.Errorw("server failed", "error", runErr)
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}
	wsServer.Close()
	registry.Close()
	if err := engine.Close(); err != nil {
		log.Errorw("error closing media engine", "error", err)
	}
	if err := directory.Close(); err != nil {
		log.Errorw("error closing room directory", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error flushing traces", "error", err)
	}

	log.Info("vcv SFU stopped")
	return runErr
}

type routes struct {
	health *httphandlers.HealthHandler
	rooms  *httphandlers.RoomHandler
	auth   httphandlers.TokenIssuer
	ws     http.HandlerFunc
}

func newRouter(cfg *config.Config, log *zap.SugaredLogger, r routes) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	r.health.SetupRoutes(router)
	if cfg.Monitoring.PrometheusEnabled {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
	router.GET(cfg.Signal.Path, gin.WrapF(r.ws))

	api := router.Group("/api/v1", middleware.APIKeyMiddleware(cfg.Auth.APIKey))
	r.rooms.SetupRoutes(api)
	if r.auth != nil && cfg.Auth.Enabled {
		httphandlers.NewAuthHandler(r.auth).SetupRoutes(api)
	}
	if cfg.Auth.APIKey == "" {
		log.Warn("auth.api_key is empty, /api/v1 is unprotected")
	}
	return router
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "sfu"
	}
	return host + "-" + uuid.NewString()[:8]
}
