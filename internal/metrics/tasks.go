package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cvstudio",
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "后台任务（pdf:generate / template:preview）处理耗时，按结果分类。",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"task_type", "outcome"},
	)

	tasksInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cvstudio",
			Subsystem: "worker",
			Name:      "tasks_in_progress",
			Help:      "当前正在处理的任务数量。",
		},
		[]string{"task_type"},
	)
)

// TaskOutcome 把任务处理结果归为 ok / retry / dropped（SkipRetry，不再重试）。
func TaskOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, asynq.SkipRetry):
		return "dropped"
	default:
		return "retry"
	}
}

// AsynqMetricsMiddleware 记录任务耗时与并发数。
func AsynqMetricsMiddleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			taskType := task.Type()
			inProgress := tasksInProgress.WithLabelValues(taskType)
			inProgress.Inc()
			defer inProgress.Dec()

			start := time.Now()
			err := next.ProcessTask(ctx, task)
			taskDuration.WithLabelValues(taskType, TaskOutcome(err)).Observe(time.Since(start).Seconds())
			return err
		})
	}
}
