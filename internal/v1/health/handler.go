package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/bus"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/logging"
	"go.uber.org/zap"
)

// MediaChecker checks the health of the media server dependency.
type MediaChecker interface {
	Check(ctx context.Context, addr string) string
}

// DefaultMediaChecker verifies gRPC connectivity to the media server's
// health endpoint using the standard gRPC health-checking protocol.
type DefaultMediaChecker struct{}

// Check verifies gRPC connectivity to the media server.
func (c *DefaultMediaChecker) Check(ctx context.Context, addr string) string {
	conn, err := grpc.NewClient(
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		logging.Error(ctx, "Failed to connect to media server for health check", zap.Error(err), zap.String("addr", addr))
		return "unhealthy"
	}
	defer func() { _ = conn.Close() }()

	healthClient := healthpb.NewHealthClient(conn)

	resp, err := healthClient.Check(ctx, &healthpb.HealthCheckRequest{
		Service: "", // Empty string checks overall server health
	})
	if err != nil {
		logging.Error(ctx, "Media server health check RPC failed", zap.Error(err))
		return "unhealthy"
	}

	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		logging.Warn(ctx, "Media server is not serving", zap.String("status", resp.Status.String()))
		return "unhealthy"
	}

	return "healthy"
}

// StorageChecker reports whether the authoritative object store is reachable.
type StorageChecker interface {
	Ping(ctx context.Context) error
}

// Handler manages health check endpoints.
type Handler struct {
	redisService  *bus.Service
	storage       StorageChecker
	mediaAddr     string
	mediaEnabled  bool
	mediaChecker  MediaChecker
}

// NewHandler creates a new health check handler.
func NewHandler(redisService *bus.Service, storage StorageChecker) *Handler {
	mediaAddr := os.Getenv("MEDIA_HEALTH_ADDR")
	if mediaAddr == "" {
		mediaAddr = "localhost:50051"
	}

	mediaEnabled := os.Getenv("MEDIA_HEALTH_CHECK_ENABLED") != "false"

	return &Handler{
		redisService: redisService,
		storage:      storage,
		mediaAddr:    mediaAddr,
		mediaEnabled: mediaEnabled,
		mediaChecker: &DefaultMediaChecker{},
	}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint.
// GET /health/live
// Returns 200 if the process is alive (no dependency checks).
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint.
// GET /health/ready
// Returns 200 only if all critical dependencies are healthy, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	redisStatus := h.checkRedis(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}

	storageStatus := h.checkStorage(ctx)
	checks["storage"] = storageStatus
	if storageStatus != "healthy" {
		allHealthy = false
	}

	if h.mediaEnabled {
		mediaStatus := h.checkMedia(ctx)
		checks["media"] = mediaStatus
		if mediaStatus != "healthy" {
			allHealthy = false
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}

// checkRedis verifies Redis connectivity using the PING command.
func (h *Handler) checkRedis(ctx context.Context) string {
	if h.redisService == nil {
		return "healthy" // single-instance mode, no Redis available
	}

	if err := h.redisService.Ping(ctx); err != nil {
		logging.Error(ctx, "Redis health check failed", zap.Error(err))
		return "unhealthy"
	}

	return "healthy"
}

// checkStorage verifies the authoritative object store is reachable.
func (h *Handler) checkStorage(ctx context.Context) string {
	if h.storage == nil {
		return "unhealthy"
	}
	if err := h.storage.Ping(ctx); err != nil {
		logging.Error(ctx, "Storage health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

// checkMedia verifies gRPC connectivity to the media server.
func (h *Handler) checkMedia(ctx context.Context) string {
	if h.mediaChecker == nil {
		return "unhealthy"
	}
	return h.mediaChecker.Check(ctx, h.mediaAddr)
}

// HealthCheckResponse is a generic health check response for backward compatibility.
type HealthCheckResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
}

// MarshalJSON implements custom JSON marshaling for better formatting.
func (r ReadinessResponse) MarshalJSON() ([]byte, error) {
	type Alias ReadinessResponse
	return json.Marshal(&struct {
		*Alias
	}{
		Alias: (*Alias)(&r),
	})
}
