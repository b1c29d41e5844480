package models

// AppConfig 应用程序配置
type AppConfig struct {
	// 活动追踪配置
	Tracking TrackingConfig `json:"tracking"`

	// 番茄钟配置
	Pomodoro PomodoroConfig `json:"pomodoro"`

	// 远端存储配置
	Remote RemoteConfig `json:"remote"`

	// 工作时间配置
	Schedule WorkSchedule `json:"schedule"`

	// 存储配置
	Storage StorageConfig `json:"storage"`

	// 服务器配置
	Server ServerConfig `json:"server"`
}

// TrackingConfig 活动追踪配置
type TrackingConfig struct {
	MinDurationSeconds int      `json:"min_duration_seconds"` // 低于该时长的观测直接丢弃(秒)
	MaxActivities      int      `json:"max_activities"`       // 本地保留的活动条数上限
	InternalSchemes    []string `json:"internal_schemes"`     // 不可追踪的内部 URL 前缀
	RequireSignIn      bool     `json:"require_sign_in"`      // 开始追踪是否要求已登录
}

// PomodoroConfig 番茄钟配置
type PomodoroConfig struct {
	FocusSeconds       int `json:"focus_seconds"`        // 专注时长(秒)
	ShortBreakSeconds  int `json:"short_break_seconds"`  // 短休息时长(秒)
	LongBreakSeconds   int `json:"long_break_seconds"`   // 长休息时长(秒)
	SessionsBeforeLong int `json:"sessions_before_long"` // 几个专注后进入长休息
}

// RemoteConfig 远端存储配置
type RemoteConfig struct {
	BaseURL        string `json:"base_url"`        // Supabase 项目地址
	AnonKey        string `json:"anon_key"`        // 匿名 API 密钥
	TimeoutSeconds int    `json:"timeout_seconds"` // 单次请求超时(秒)
	FlushInterval  int    `json:"flush_interval"`  // 定时补传间隔(分钟),0 表示关闭
}

// WorkSchedule 工作时间配置
type WorkSchedule struct {
	StartTime string `json:"start_time"` // 开始时间 "09:00"
	EndTime   string `json:"end_time"`   // 结束时间 "18:00"
	WorkDays  []int  `json:"work_days"`  // 工作日 (0=周日, 1=周一, ...)
	Enabled   bool   `json:"enabled"`    // 是否在工作时间自动启停追踪
}

// StorageConfig 存储配置
type StorageConfig struct {
	DataDir       string `json:"data_dir"`       // 数据目录
	LogsDir       string `json:"logs_dir"`       // 日志存储目录
	RetentionDays int    `json:"retention_days"` // 已同步活动保留天数
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port       int    `json:"port"`        // 端口号
	Host       string `json:"host"`        // 主机地址
	EnableCORS bool   `json:"enable_cors"` // 是否启用 CORS
}

// DefaultConfig 返回默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Tracking: TrackingConfig{
			MinDurationSeconds: 5,
			MaxActivities:      1000,
			InternalSchemes:    []string{"chrome://", "chrome-extension://", "about:", "edge://"},
			RequireSignIn:      true,
		},
		Pomodoro: PomodoroConfig{
			FocusSeconds:       25 * 60,
			ShortBreakSeconds:  5 * 60,
			LongBreakSeconds:   15 * 60,
			SessionsBeforeLong: 4,
		},
		Remote: RemoteConfig{
			BaseURL:        "",
			AnonKey:        "",
			TimeoutSeconds: 30,
			FlushInterval:  15,
		},
		Schedule: WorkSchedule{
			StartTime: "09:00",
			EndTime:   "18:00",
			WorkDays:  []int{1, 2, 3, 4, 5}, // 周一到周五
			Enabled:   false,
		},
		Storage: StorageConfig{
			DataDir:       "./data",
			LogsDir:       "./data/logs",
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Port:       9530,
			Host:       "localhost",
			EnableCORS: true,
		},
	}
}
