package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/solar-forecast/internal/infra/config"
	apperrors "github.com/yanqian/solar-forecast/pkg/errors"
)

func TestAsHTTPError_MapsDomainCodes(t *testing.T) {
	cases := map[string]struct {
		err    error
		status int
		code   string
	}{
		"invalid input": {err: apperrors.Wrap(apperrors.CodeInvalidInput, "bad date", nil), status: http.StatusBadRequest, code: apperrors.CodeInvalidInput},
		"model":         {err: apperrors.Wrap(apperrors.CodeModel, "model not loaded", nil), status: http.StatusServiceUnavailable, code: apperrors.CodeModel},
		"token":         {err: apperrors.Wrap(apperrors.CodeInvalidToken, "token invalid", nil), status: http.StatusUnauthorized, code: apperrors.CodeInvalidToken},
		"weather":       {err: apperrors.Wrap(apperrors.CodeWeather, "provider down", errors.New("502")), status: http.StatusBadGateway, code: apperrors.CodeWeather},
		"quota":         {err: apperrors.Wrap(apperrors.CodeQuota, "daily weather quota exhausted", nil), status: http.StatusTooManyRequests, code: apperrors.CodeQuota},
		"wrapped":       {err: fmt.Errorf("handler: %w", apperrors.Wrap(apperrors.CodeInvalidInput, "bad lat", nil)), status: http.StatusBadRequest, code: apperrors.CodeInvalidInput},
		"unknown code":  {err: apperrors.Wrap("mystery", "boom", nil), status: http.StatusInternalServerError, code: "mystery"},
		"plain":         {err: errors.New("boom"), status: http.StatusInternalServerError, code: "internal_error"},
		"transport":     {err: NewHTTPError(http.StatusBadRequest, "invalid_request", "bad json", nil), status: http.StatusBadRequest, code: "invalid_request"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := asHTTPError(tc.err)
			require.Equal(t, tc.status, got.Status)
			require.Equal(t, tc.code, got.Code)
			require.NotEmpty(t, got.Message)
		})
	}
}

func TestErrorHandlingMiddleware_RendersAppErrorMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(errorHandlingMiddleware(newTestLogger()))
	router.GET("/", func(c *gin.Context) {
		abortWithError(c, apperrors.Wrap(apperrors.CodeInvalidInput, "start_date must be YYYY-MM-DD", errors.New("parse error")))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorBody(t, rec.Body.Bytes())
	require.Equal(t, apperrors.CodeInvalidInput, body["error"]["code"])
	require.Equal(t, "start_date must be YYYY-MM-DD", body["error"]["message"])
}

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time { return c.t }

func TestIPRateLimiter_RefillsWithClock(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	limiter := newIPRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, Burst: 2}, clock.Now)

	for i := 0; i < 2; i++ {
		ok, _ := limiter.allow("10.0.0.1")
		require.True(t, ok)
	}
	ok, wait := limiter.allow("10.0.0.1")
	require.False(t, ok)
	require.Equal(t, 30*time.Second, wait)

	// other clients keep their own bucket
	ok, _ = limiter.allow("10.0.0.2")
	require.True(t, ok)

	clock.t = clock.t.Add(30 * time.Second)
	ok, _ = limiter.allow("10.0.0.1")
	require.True(t, ok)
	ok, _ = limiter.allow("10.0.0.1")
	require.False(t, ok)
}

func TestIPRateLimiter_ZeroBurstStillAdmits(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	limiter := newIPRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMinute: 60}, clock.Now)

	ok, _ := limiter.allow("10.0.0.1")
	require.True(t, ok)
}

func TestIPRateLimiter_SweepsIdleVisitors(t *testing.T) {
	clock := &stepClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	limiter := newIPRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}, clock.Now)

	limiter.allow("10.0.0.1")
	require.Len(t, limiter.visitors, 1)

	clock.t = clock.t.Add(visitorTTL + time.Second)
	limiter.allow("10.0.0.2")
	require.Len(t, limiter.visitors, 1)
	require.Contains(t, limiter.visitors, "10.0.0.2")
}

func TestRateLimitMiddleware_SetsRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := &stepClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	router := gin.New()
	router.Use(errorHandlingMiddleware(newTestLogger()))
	router.Use(rateLimitMiddlewareWithClock(config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}, newTestLogger(), clock.Now))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))

	clock.t = clock.t.Add(time.Minute)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(corsMiddleware([]string{"https://dash.example.com"}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Origin", rec.Header().Get("Vary"))
	require.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestResolveOrigin(t *testing.T) {
	origin, ok := resolveOrigin("https://a.example.com", nil)
	require.True(t, ok)
	require.Equal(t, "*", origin)

	origin, ok = resolveOrigin("https://A.example.com", []string{"https://a.example.com"})
	require.True(t, ok)
	require.Equal(t, "https://A.example.com", origin)

	_, ok = resolveOrigin("", []string{"https://a.example.com"})
	require.False(t, ok)
}
