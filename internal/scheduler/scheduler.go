package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"rizetracker/internal/config"
	"rizetracker/internal/storage"
	"rizetracker/pkg/logger"

	"github.com/robfig/cron/v3"
)

// workDaysToCron 将工作日数组转换为cron表达式的星期部分
// workDays: [0,1,2,3,4,5,6] 其中0=周日，1=周一，...，6=周六
// 返回: "0,1,2,3,4,5,6" 或 "*" (如果全选)
func workDaysToCron(workDays []int) string {
	if len(workDays) == 0 {
		return "*" // 空数组视为全选
	}
	if len(workDays) == 7 {
		return "*" // 全部7天
	}

	dayStrs := make([]string, len(workDays))
	for i, day := range workDays {
		dayStrs[i] = fmt.Sprintf("%d", day)
	}

	return strings.Join(dayStrs, ",")
}

// TrackingController 追踪控制器接口,避免循环依赖
type TrackingController interface {
	Enable() error
	Disable()
	IsTracking() bool
}

// Flusher 未同步记录的补传入口
type Flusher interface {
	PushPending(ctx context.Context)
}

// Scheduler 任务调度器
// 承担三类周期任务: 工作时间自动启停追踪、过期数据清理、定时补传
type Scheduler struct {
	cron       *cron.Cron
	configMgr  *config.Manager
	storageMgr *storage.Manager
	tracking   TrackingController
	flusher    Flusher
	mu         sync.Mutex
	running    bool
}

// NewScheduler 创建任务调度器
func NewScheduler(
	configMgr *config.Manager,
	storageMgr *storage.Manager,
	tracking TrackingController,
	flusher Flusher,
) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		configMgr:  configMgr,
		storageMgr: storageMgr,
		tracking:   tracking,
		flusher:    flusher,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	// 工作时间自动启停追踪
	if s.configMgr.GetSchedule().Enabled {
		if err := s.addAutoStartTrackingJob(); err != nil {
			fmt.Printf("⚠️ 添加自动开启追踪任务失败: %v\n", err)
		}
		if err := s.addAutoStopTrackingJob(); err != nil {
			fmt.Printf("⚠️ 添加自动关闭追踪任务失败: %v\n", err)
		}
	}

	// 定时补传未同步记录
	if interval := s.configMgr.GetRemote().FlushInterval; interval > 0 {
		cronExpr := fmt.Sprintf("@every %dm", interval)
		if _, err := s.cron.AddFunc(cronExpr, s.runFlush); err != nil {
			return fmt.Errorf("failed to add flush job: %w", err)
		}
	}

	// 清理任务（每天凌晨 3 点）
	if _, err := s.cron.AddFunc("0 3 * * *", s.runCleanup); err != nil {
		return fmt.Errorf("failed to add cleanup job: %w", err)
	}

	s.cron.Start()
	s.running = true

	fmt.Println("⏰ 任务调度器已启动")
	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cron.Stop()
	s.running = false
	fmt.Println("⏰ 任务调度器已停止")
}

// IsRunning 检查是否运行中
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// runFlush 定时补传一次
// 复用 PushPending,失败不重试,等下一个周期
func (s *Scheduler) runFlush() {
	logger.Debug("定时补传开始...")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s.flusher.PushPending(ctx)
}

// runCleanup 执行清理任务
// 只清理已同步且超过保留期的活动,未同步的永不清理
func (s *Scheduler) runCleanup() {
	fmt.Println("🧹 开始清理旧数据...")

	storageCfg := s.configMgr.GetStorage()
	deleted, err := s.storageMgr.CleanupSyncedActivities(storageCfg.RetentionDays)
	if err != nil {
		fmt.Printf("❌ 清理失败: %v\n", err)
		return
	}

	fmt.Printf("✅ 清理完成，删除了 %d 条旧活动\n", deleted)
}

// addAutoStartTrackingJob 添加工作开始时间自动开启追踪的任务
func (s *Scheduler) addAutoStartTrackingJob() error {
	schedule := s.configMgr.GetSchedule()

	startTime, err := time.Parse("15:04", schedule.StartTime)
	if err != nil {
		return fmt.Errorf("无效的开始时间格式: %w", err)
	}

	hour := startTime.Hour()
	minute := startTime.Minute()

	// 例如：09:00 工作日1,2,3,4,5 -> "0 9 * * 1,2,3,4,5"
	weekDays := workDaysToCron(schedule.WorkDays)
	cronExpr := fmt.Sprintf("%d %d * * %s", minute, hour, weekDays)

	if _, err := s.cron.AddFunc(cronExpr, s.autoStartTracking); err != nil {
		return fmt.Errorf("failed to add auto-start tracking job: %w", err)
	}

	fmt.Printf("⏰ 工作时间自动开启追踪任务已添加 (工作日 %02d:%02d)\n", hour, minute)
	return nil
}

// autoStartTracking 自动开启追踪(在工作开始时间)
func (s *Scheduler) autoStartTracking() {
	fmt.Println("⏰ 到达工作开始时间，检查是否需要自动开启追踪...")

	if s.tracking.IsTracking() {
		fmt.Println("ℹ️ 活动追踪已开启，无需操作")
		return
	}

	if err := s.tracking.Enable(); err != nil {
		// 未登录时开启失败是正常情况,记录后等用户登录
		fmt.Printf("⚠️ 自动开启追踪失败: %v\n", err)
		return
	}

	fmt.Println("✅ 活动追踪已自动开启")
}

// addAutoStopTrackingJob 添加工作结束时间自动关闭追踪的任务
func (s *Scheduler) addAutoStopTrackingJob() error {
	schedule := s.configMgr.GetSchedule()

	endTime, err := time.Parse("15:04", schedule.EndTime)
	if err != nil {
		return fmt.Errorf("无效的结束时间格式: %w", err)
	}

	hour := endTime.Hour()
	minute := endTime.Minute()

	weekDays := workDaysToCron(schedule.WorkDays)
	cronExpr := fmt.Sprintf("%d %d * * %s", minute, hour, weekDays)

	if _, err := s.cron.AddFunc(cronExpr, s.autoStopTracking); err != nil {
		return fmt.Errorf("failed to add auto-stop tracking job: %w", err)
	}

	fmt.Printf("⏰ 工作时间自动关闭追踪任务已添加 (工作日 %02d:%02d)\n", hour, minute)
	return nil
}

// autoStopTracking 自动关闭追踪(在工作结束时间)
func (s *Scheduler) autoStopTracking() {
	fmt.Println("⏰ 到达工作结束时间，检查是否需要自动关闭追踪...")

	if !s.tracking.IsTracking() {
		fmt.Println("ℹ️ 活动追踪未开启，无需操作")
		return
	}

	s.tracking.Disable()
	fmt.Println("✅ 活动追踪已自动关闭")
}
