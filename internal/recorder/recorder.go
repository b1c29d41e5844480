package recorder

import (
	"context"
	"time"

	"rizetracker/internal/classifier"
	"rizetracker/internal/observability"
	"rizetracker/pkg/logger"
	"rizetracker/pkg/models"
	"rizetracker/pkg/utils"

	"github.com/google/uuid"
)

// 生产力评分达到该值计入高效时间
const productiveThreshold = 4

// store 记录器依赖的本地存储子集
type store interface {
	AppendActivity(*models.Activity) error
	AddToDayStats(dayKey, category string, seconds int, productive bool) error
}

// pusher 单条活动的异步上报
type pusher interface {
	PushOne(ctx context.Context, a *models.Activity)
}

// Recorder 活动记录器
// 把一段观测(surface + 起点 + 时长)变成一条不可变的活动记录:
// 低于阈值的观测静默丢弃,入库成功后触发一次尽力而为的上报
type Recorder struct {
	store       store
	pusher      pusher
	minDuration int
}

// NewRecorder 创建活动记录器
func NewRecorder(store store, pusher pusher, minDurationSeconds int) *Recorder {
	if minDurationSeconds <= 0 {
		minDurationSeconds = 5
	}
	return &Recorder{
		store:       store,
		pusher:      pusher,
		minDuration: minDurationSeconds,
	}
}

// Record 记录一段观测
// 时长低于阈值时直接丢弃(不是错误),返回 nil
// 本地落库是权威路径: 上报失败不影响返回值
func (r *Recorder) Record(surface models.Surface, startedAt time.Time, durationSeconds int) *models.Activity {
	if durationSeconds < r.minDuration {
		logger.Debug("观测时长 %d 秒低于阈值 %d 秒,丢弃: %s", durationSeconds, r.minDuration, surface.Domain)
		observability.RecordDropped()
		return nil
	}

	c := classifier.Classify(surface.Domain)

	kind := models.ActivityKindWebsite
	if surface.Domain == "" && surface.URL == "" {
		kind = models.ActivityKindApplication
	}

	name := surface.Title
	if name == "" {
		name = surface.Domain
	}

	activity := &models.Activity{
		ID:                uuid.NewString(),
		Kind:              kind,
		Name:              name,
		Domain:            surface.Domain,
		URL:               surface.URL,
		Category:          c.Category,
		ProductivityScore: c.ProductivityScore,
		DurationSeconds:   durationSeconds,
		StartedAt:         startedAt,
		Synced:            false,
	}

	if err := r.store.AppendActivity(activity); err != nil {
		logger.Error("活动入库失败: %v", err)
		return nil
	}
	observability.RecordActivity()

	// 累加当日统计,日期按观测开始时间归属
	dayKey := utils.DayKey(startedAt)
	productive := activity.ProductivityScore >= productiveThreshold
	if err := r.store.AddToDayStats(dayKey, activity.Category, durationSeconds, productive); err != nil {
		logger.Error("更新每日统计失败: %v", err)
	}

	// 尽力而为的上报,不阻塞记录路径
	if r.pusher != nil {
		go r.pusher.PushOne(context.Background(), activity)
	}

	logger.Debug("活动已记录: %s (%s, %d秒, 评分%d)", activity.Name, activity.Category, durationSeconds, activity.ProductivityScore)
	return activity
}
