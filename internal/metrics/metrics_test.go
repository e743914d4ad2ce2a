package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests here share package-level collectors and must not run in parallel.

func TestInitAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Init(reg))

	RecordAuthorization("guest", "granted")
	RecordAuthorization("guest", "granted")
	RecordAuthorization("guest", "incorrect_password")
	RecordControllerPush("failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(authorizationsTotal.Load().WithLabelValues("guest", "granted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(authorizationsTotal.Load().WithLabelValues("guest", "incorrect_password")))
	assert.Equal(t, 1.0, testutil.ToFloat64(controllerPushTotal.Load().WithLabelValues("failed")))

	// Registering twice on the same registry fails.
	assert.Error(t, Init(reg))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	require.NoError(t, Init(reg))

	engine := gin.New()
	engine.Use(Middleware())
	engine.GET("/ui/log", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/metrics", gin.WrapH(Handler(reg)))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ui/log", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `airfi_portal_requests_total{method="GET",path="/ui/log",status="200"} 1`)
}
