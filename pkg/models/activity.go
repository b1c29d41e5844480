package models

import "time"

// 活动类型
const (
	ActivityKindWebsite     = "website"
	ActivityKindApplication = "application"
)

// Activity 一条活动记录
// 记录创建后不可变,只有 Synced 标志允许从 false 变为 true
type Activity struct {
	ID                string    `json:"id" db:"id"`
	Kind              string    `json:"type" db:"kind"`
	Name              string    `json:"name" db:"name"`
	Domain            string    `json:"domain,omitempty" db:"domain"`
	URL               string    `json:"url,omitempty" db:"url"`
	Category          string    `json:"category" db:"category"`
	ProductivityScore int       `json:"productivity_score" db:"productivity_score"`
	DurationSeconds   int       `json:"duration" db:"duration_seconds"`
	StartedAt         time.Time `json:"timestamp" db:"started_at"`
	Synced            bool      `json:"synced" db:"synced"`
}

// 番茄钟模式
const (
	ModeFocus      = "focus"
	ModeShortBreak = "short_break"
	ModeLongBreak  = "long_break"
)

// FocusSession 一次番茄钟计时
// 计时开始时创建(临时记录),自然倒计时到 0 时才标记完成
// 中途暂停/重置的会话视为放弃,不会被标记完成,也不会重试上报
type FocusSession struct {
	ID              string     `json:"id" db:"id"`
	Mode            string     `json:"type" db:"mode"`
	DurationSeconds int        `json:"duration" db:"duration_seconds"` // 模式的标称时长,不是实际经过时间
	StartedAt       time.Time  `json:"start_time" db:"started_at"`
	EndedAt         *time.Time `json:"end_time,omitempty" db:"ended_at"`
	Completed       bool       `json:"completed" db:"completed"`
	Synced          bool       `json:"synced" db:"synced"`
}

// Surface 被观测的浏览器标签页/窗口
type Surface struct {
	ID     string `json:"surface_id"`
	URL    string `json:"url"`
	Domain string `json:"domain"`
	Title  string `json:"title"`
}

// ObservedSurface 当前正在计时的 Surface 及其观测起点
type ObservedSurface struct {
	Surface Surface   `json:"surface"`
	Since   time.Time `json:"since"`
}

// PomodoroSnapshot 番茄钟状态快照(只读视图)
type PomodoroSnapshot struct {
	IsActive          bool   `json:"is_active"`
	Mode              string `json:"mode"`
	TimeLeftSeconds   int    `json:"time_left"`
	CompletedSessions int    `json:"completed_sessions"`
}

// TrackingSnapshot 追踪状态快照(只读视图)
type TrackingSnapshot struct {
	IsTracking     bool             `json:"is_tracking"`
	CurrentSurface *ObservedSurface `json:"current_surface,omitempty"`
}

// DayStats 单日统计
// 按活动的开始时间归属日期(本地时区),跨午夜的活动整体计入开始日
type DayStats struct {
	Date            string         `json:"date"`
	TotalSeconds    int            `json:"total_time"`
	ProductiveSecs  int            `json:"productive_time"`
	ActivityCount   int            `json:"activities"`
	CategorySeconds map[string]int `json:"categories"`
}

// Classification 域名分类结果
type Classification struct {
	Category          string `json:"category"`
	ProductivityScore int    `json:"productivity_score"`
}
