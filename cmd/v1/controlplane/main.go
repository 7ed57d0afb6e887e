// Command controlplane is the OpenVidu Meet control-plane server: it wires
// the Storage, Lock, Event Bus, Scheduler and domain-service layers behind
// the HTTP surface in internal/v1/httpapi.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/apikey"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/auth"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/bus"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/config"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/health"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/httpapi"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/lock"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/logging"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/media"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/member"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/ratelimit"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/recording"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/room"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/scheduler"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/storage"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/token"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/tracing"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/webhook"
)

func main() {
	for _, path := range []string{".env", "../../../.env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		panic(err)
	}

	if err := logging.Initialize(cfg.GoEnv != "production"); err != nil {
		panic(err)
	}
	ctx := context.Background()
	logging.Info(ctx, "control plane starting", zap.String("port", cfg.Port), zap.String("go_env", cfg.GoEnv))

	if !cfg.RedisEnabled {
		logging.Error(ctx, "REDIS_ENABLED=false is not supported: the Lock Manager and Event Bus require Redis")
		os.Exit(1)
	}

	if cfg.OTELCollectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "openvidu-meet-controlplane", cfg.OTELCollectorAddr)
		if err != nil {
			logging.Error(ctx, "failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
		}
	}

	objStore, err := storage.OpenObjectStore(cfg.ObjectStoreDir)
	if err != nil {
		logging.Error(ctx, "failed to open object store", zap.Error(err))
		os.Exit(1)
	}
	defer objStore.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer redisClient.Close()

	redisSvc, err := bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logging.Error(ctx, "failed to connect event bus to redis", zap.Error(err))
		os.Exit(1)
	}
	defer redisSvc.Close()

	cache := storage.NewCache(redisClient, 5*time.Minute)
	store := storage.NewStore(objStore, cache)
	locks := lock.NewManager(redisClient, replicaID())
	events := bus.New(redisSvc)
	events.SubscribeReplicas(ctx, nil)

	adapter := media.NewLiveKitAdapter(cfg.LiveKitURL, cfg.LiveKitKey, cfg.LiveKitSecret)

	bootstrapResult, err := storage.Bootstrap(ctx, store, locks, events, publicBaseURL(cfg), defaultRoleTemplates())
	if err != nil {
		logging.Error(ctx, "storage bootstrap failed", zap.Error(err))
		os.Exit(1)
	}
	if bootstrapResult.Seeded {
		if bootstrapResult.InitialAdminPassword != "" {
			logging.Info(ctx, "seeded initial admin — record this password, it will not be shown again",
				zap.String("user_id", bootstrapResult.InitialAdminUserID),
				zap.String("password", bootstrapResult.InitialAdminPassword))
		}
		if bootstrapResult.InitialAPIKey != "" {
			logging.Info(ctx, "seeded initial API key — record this key, it will not be shown again",
				zap.String("key", bootstrapResult.InitialAPIKey))
		}
	}

	rooms := room.NewService(store, adapter, locks, events, room.Config{
		BaseURL:             publicBaseURL(cfg),
		RoomIDRandomLength:  cfg.RoomIDRandomLength,
		MinAutoDeletionLead: cfg.MinAutoDeletionLead,
	})
	recordings := recording.NewService(store, adapter, locks, events, recording.Config{
		LockTTL:       cfg.RecordingLockTTL,
		StartTimeout:  cfg.RecordingStartTimeout,
		GCGracePeriod: cfg.OrphanLockGracePeriod,
	})
	members := member.NewService(store, adapter)
	apiKeys := apikey.NewService(store)
	tokens := token.NewService(cfg.ServerSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, "openvidu-meet")
	webhookSink := webhook.NewSink(rooms, recordings, locks, cfg.LiveKitKey, cfg.LiveKitSecret)

	tasks := scheduler.New(locks, cfg.RecordingLockTTL)
	registerGCTasks(tasks, rooms, recordings, cfg)

	rateLimiter, err := ratelimit.NewRateLimiter(cfg, redisClient)
	if err != nil {
		logging.Error(ctx, "failed to build rate limiter", zap.Error(err))
		os.Exit(1)
	}

	healthHandler := health.NewHandler(redisSvc, objStore)

	handlers := &httpapi.Handlers{
		Store:       store,
		Rooms:       rooms,
		Members:     members,
		Recordings:  recordings,
		ApiKeys:     apiKeys,
		Tokens:      tokens,
		Webhook:     webhookSink,
		Health:      healthHandler,
		RateLimiter: rateLimiter,
		BasePath:    cfg.BasePath,

		RoomMemberTokenTTL: cfg.RoomMemberTokenTTL,
	}
	// Assigned only when non-nil: a nil *auth.Validator stored directly in
	// the ssoValidator interface field would be a non-nil interface
	// wrapping a nil pointer, which every future "is SSO configured" check
	// would misread as configured.
	if sso := ssoValidator(ctx, cfg); sso != nil {
		handlers.SSO = sso
	}

	engine := handlers.NewRouter()
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: engine}
	go func() {
		logging.Info(ctx, "http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "graceful shutdown failed", zap.Error(err))
	}
}

// registerGCTasks wires the three supplemented GC routines (spec §4.8/§4.9)
// in as named, cluster-wide scheduler tasks (SPEC_FULL.md §3 item 5) — each
// a cron registration on an "@every" expression, the one Kind that is
// actually lock-coordinated across replicas (see DESIGN.md's scheduler
// entry for why RegisterInterval is not used here).
func registerGCTasks(tasks *scheduler.Registry, rooms *room.Service, recordings *recording.Service, cfg *config.Config) {
	every := "@every " + cfg.OrphanLockGCInterval.String()
	_ = tasks.RegisterCron("room_expiration_gc", every, rooms.ExpirationGC)
	_ = tasks.RegisterCron("room_status_consistency_gc", every, rooms.StatusConsistencyGC)
	_ = tasks.RegisterCron("recording_orphan_lock_gc", every, recordings.OrphanLockGC)
}

// ssoValidator constructs the OIDC/JWKS bridge (SPEC_FULL.md §3 item 3) when
// OIDC_ISSUER is configured, or nil otherwise — Handlers treats a nil SSO as
// "no SSO bridge configured" and never consults it.
func ssoValidator(ctx context.Context, cfg *config.Config) *auth.Validator {
	if cfg.OIDCIssuer == "" {
		return nil
	}
	validator, err := auth.NewValidator(ctx, cfg.OIDCIssuer, cfg.OIDCAudience)
	if err != nil {
		logging.Error(ctx, "failed to initialize SSO validator, continuing without SSO", zap.Error(err))
		return nil
	}
	return validator
}

func publicBaseURL(cfg *config.Config) string {
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		return v
	}
	return "http://localhost:" + cfg.Port
}

func defaultRoleTemplates() map[string]storage.RoleTemplate {
	return map[string]storage.RoleTemplate{
		"moderator": {Role: "moderator", Permissions: map[string]any{"canRecord": true, "canModerate": true}},
		"speaker":   {Role: "speaker", Permissions: map[string]any{"canPublish": true}},
		"viewer":    {Role: "viewer", Permissions: map[string]any{"canPublish": false}},
	}
}

func replicaID() string {
	if v := os.Getenv("REPLICA_ID"); v != "" {
		return v
	}
	host, err := os.Hostname()
	if err != nil {
		return "replica-unknown"
	}
	return host
}
