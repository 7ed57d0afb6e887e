package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStorageChecker struct{ err error }

func (m *mockStorageChecker) Ping(ctx context.Context) error { return m.err }

type mockMediaChecker struct{ status string }

func (m *mockMediaChecker) Check(ctx context.Context, addr string) string { return m.status }

func TestLiveness(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := NewHandler(nil, &mockStorageChecker{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/live", nil)

	handler.Liveness(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
	assert.Contains(t, w.Body.String(), "timestamp")
}

func TestReadiness_NilRedisHealthyStorage(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := &Handler{
		redisService: nil,
		storage:      &mockStorageChecker{},
		mediaEnabled: false,
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/ready", nil)

	handler.Readiness(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestReadiness_ResponseFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := &Handler{
		redisService: nil,
		storage:      &mockStorageChecker{},
		mediaEnabled: true,
		mediaAddr:    "localhost:50051",
		mediaChecker: &mockMediaChecker{status: "healthy"},
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/ready", nil)

	handler.Readiness(c)

	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "status")
	assert.Contains(t, body, "checks")
	assert.Contains(t, body, "timestamp")
	assert.Contains(t, body, "redis")
	assert.Contains(t, body, "media")
	assert.Contains(t, body, "storage")
}

func TestReadiness_MediaDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := &Handler{
		redisService: nil,
		storage:      &mockStorageChecker{},
		mediaEnabled: false,
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/ready", nil)

	handler.Readiness(c)

	assert.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "ready")
	assert.Contains(t, body, "redis")
	assert.NotContains(t, body, `"media"`)
}

func TestReadiness_StorageUnhealthy(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := &Handler{
		redisService: nil,
		storage:      nil,
		mediaEnabled: false,
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/ready", nil)

	handler.Readiness(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unavailable")
}

func TestLivenessEndpoint_AlwaysSucceeds(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := &Handler{
		redisService: nil,
		mediaEnabled: true,
		mediaAddr:    "invalid:9999",
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/live", nil)

	handler.Liveness(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}

func TestNewHandler_DefaultValues(t *testing.T) {
	handler := NewHandler(nil, &mockStorageChecker{})

	assert.NotNil(t, handler)
	assert.NotEmpty(t, handler.mediaAddr)
	assert.True(t, handler.mediaEnabled)
}
