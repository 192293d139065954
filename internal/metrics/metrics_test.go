package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskOutcome(t *testing.T) {
	assert.Equal(t, "ok", TaskOutcome(nil))
	assert.Equal(t, "retry", TaskOutcome(errors.New("render timeout")))
	assert.Equal(t, "dropped", TaskOutcome(fmt.Errorf("bad payload: %w", asynq.SkipRetry)))
}

func TestAsynqMetricsMiddleware(t *testing.T) {
	handler := AsynqMetricsMiddleware()(asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		assert.Equal(t, 1.0, testutil.ToFloat64(tasksInProgress.WithLabelValues("test:task")))
		return nil
	}))

	require.NoError(t, handler.ProcessTask(context.Background(), asynq.NewTask("test:task", nil)))
	assert.Equal(t, 0.0, testutil.ToFloat64(tasksInProgress.WithLabelValues("test:task")))
}

func TestGinMiddleware_SkipsUntrackedRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/v1/cv/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/metrics", "/v1/cv/1", "/v1/cv/2", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	// GET /v1/cv/:id 200 与 GET unmatched 404 两个序列
	assert.Equal(t, 2, testutil.CollectAndCount(requestDuration))
}

func TestEditorCounters(t *testing.T) {
	before := testutil.ToFloat64(autosaveTotal.WithLabelValues("created"))
	ObserveAutosave("created")
	assert.Equal(t, before+1, testutil.ToFloat64(autosaveTotal.WithLabelValues("created")))

	SessionOpened()
	SessionOpened()
	SessionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(editorSessions))
	SessionClosed()
}
