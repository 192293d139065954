package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	autosaveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvstudio",
			Subsystem: "editor",
			Name:      "autosaves_total",
			Help:      "自动保存次数，按结果（created/updated/skipped/failed）分类。",
		},
		[]string{"result"},
	)

	editorSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cvstudio",
			Subsystem: "editor",
			Name:      "open_sessions",
			Help:      "当前打开的编辑会话数量。",
		},
	)

	exportTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvstudio",
			Subsystem: "export",
			Name:      "requests_total",
			Help:      "导出请求数，按结果（delivered/redirected/save_failed/failed）分类。",
		},
		[]string{"outcome"},
	)
)

// ObserveAutosave 记录一次自动保存结果。
func ObserveAutosave(result string) {
	autosaveTotal.WithLabelValues(result).Inc()
}

// SessionOpened / SessionClosed 维护打开中的编辑会话数。
func SessionOpened() { editorSessions.Inc() }
func SessionClosed() { editorSessions.Dec() }

// ObserveExport 记录一次导出网关的结果。
func ObserveExport(outcome string) {
	exportTotal.WithLabelValues(outcome).Inc()
}
