package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/auth"
	"github.com/OpenVidu/openvidu-meet-sub006/internal/v1/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		RateLimitAPIGlobal:     "10-M",
		RateLimitAPIPublic:     "5-M",
		RateLimitAPIRooms:      "5-M",
		RateLimitAPIRecordings: "5-M",
		RateLimitWebhook:       "5-M",
	}
}

func newTestLimiter(t *testing.T) (*RateLimiter, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	rl, err := NewRateLimiter(testConfig(), rc)
	require.NoError(t, err)

	return rl, mr
}

func TestNewRateLimiter_Memory(t *testing.T) {
	rl, err := NewRateLimiter(testConfig(), nil)
	assert.NoError(t, err)
	assert.NotNil(t, rl)
	assert.Nil(t, rl.redisClient)
}

func TestGlobalMiddleware_Public(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.GlobalMiddleware())
	r.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest("GET", "/test", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "5", resp.Header().Get("X-RateLimit-Limit"))
	}

	req, _ := http.NewRequest("GET", "/test", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestGlobalMiddleware_User(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(1 * time.Hour)),
		},
	})
	tokenString, _ := token.SignedString([]byte("test-secret"))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		// Simulate auth middleware having run and populated claims.
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parsed, _, _ := jwt.NewParser().ParseUnverified(tokenString, &auth.CustomClaims{})
			if claims, ok := parsed.Claims.(*auth.CustomClaims); ok {
				c.Set("claims", claims)
			}
		}
		c.Next()
	})
	r.Use(rl.GlobalMiddleware())
	r.GET("/test-user", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 10; i++ {
		req, _ := http.NewRequest("GET", "/test-user", nil)
		req.Header.Set("Authorization", "Bearer "+tokenString)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "10", resp.Header().Get("X-RateLimit-Limit"))
	}

	req, _ := http.NewRequest("GET", "/test-user", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestMiddlewareForEndpoint_Rooms(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	r := gin.New()
	r.POST("/rooms", rl.MiddlewareForEndpoint("rooms"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest("POST", "/rooms", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
	}

	req, _ := http.NewRequest("POST", "/rooms", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestMiddlewareForEndpoint_Recordings(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	r := gin.New()
	r.POST("/recordings", rl.MiddlewareForEndpoint("recordings"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest("POST", "/recordings", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
	}

	req, _ := http.NewRequest("POST", "/recordings", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestWebhookMiddleware(t *testing.T) {
	rl, mr := newTestLimiter(t)
	defer mr.Close()

	r := gin.New()
	r.POST("/webhook", rl.WebhookMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest("POST", "/webhook", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		assert.Equal(t, http.StatusOK, resp.Code)
	}

	req, _ := http.NewRequest("POST", "/webhook", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestRedisFailure_FailsOpen(t *testing.T) {
	rl, mr := newTestLimiter(t)
	mr.Close()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.GlobalMiddleware())
	r.GET("/fail-open", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req, _ := http.NewRequest("GET", "/fail-open", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
}
