package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cvstudio",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP 请求耗时分布（秒），PDF 导出路由耗时较长，桶上限放宽到 30 秒。",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status"},
	)

	requestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cvstudio",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "当前正在处理的 HTTP 请求数量（不含 WebSocket 长连接）。",
		},
	)
)

// 长连接与抓取端点不计入请求指标。
var untrackedRoutes = map[string]bool{
	"/metrics": true,
	"/v1/ws":   true,
}

// GinMiddleware 按路由模板（而非原始 URL）记录请求耗时与数量，未匹配路由统一记为 "unmatched"。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if untrackedRoutes[route] {
			c.Next()
			return
		}
		if route == "" {
			route = "unmatched"
		}

		start := time.Now()
		requestsInFlight.Inc()
		c.Next()
		requestsInFlight.Dec()

		requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
