package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	activitiesRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rizetracker",
		Subsystem: "recorder",
		Name:      "activities_recorded_total",
		Help:      "Number of activities persisted to the local store.",
	})
	activitiesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rizetracker",
		Subsystem: "recorder",
		Name:      "activities_dropped_total",
		Help:      "Number of observations dropped for falling below the minimum duration.",
	})
	syncSuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rizetracker",
		Subsystem: "sync",
		Name:      "push_success_total",
		Help:      "Number of successful remote pushes (single or batch).",
	})
	syncFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rizetracker",
		Subsystem: "sync",
		Name:      "push_failure_total",
		Help:      "Number of failed remote pushes.",
	})
	unsyncedBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rizetracker",
		Subsystem: "sync",
		Name:      "unsynced_backlog",
		Help:      "Records still waiting to be mirrored to the remote store.",
	})
	pomodoroCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rizetracker",
		Subsystem: "pomodoro",
		Name:      "sessions_completed_total",
		Help:      "Number of focus sessions that ran to natural completion.",
	})
)

func init() {
	prometheus.MustRegister(
		activitiesRecorded,
		activitiesDropped,
		syncSuccess,
		syncFailure,
		unsyncedBacklog,
		pomodoroCompleted,
	)
}

// RecordActivity 本地落库一条活动
func RecordActivity() {
	activitiesRecorded.Inc()
}

// RecordDropped 丢弃一条低于阈值的观测
func RecordDropped() {
	activitiesDropped.Inc()
}

// RecordPush 一次远端推送的结果
func RecordPush(ok bool) {
	if ok {
		syncSuccess.Inc()
	} else {
		syncFailure.Inc()
	}
}

// SetBacklog 更新未同步积压量
func SetBacklog(n int) {
	unsyncedBacklog.Set(float64(n))
}

// RecordPomodoroCompleted 一次番茄钟自然完成
func RecordPomodoroCompleted() {
	pomodoroCompleted.Inc()
}
