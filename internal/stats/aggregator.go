package stats

import (
	"rizetracker/pkg/models"
	"rizetracker/pkg/utils"
)

// 生产力评分达到该值计入高效时间
const productiveThreshold = 4

// Aggregate 对给定日期的活动做一次纯折叠
// 不持久化,随时可重算,结果必须与活动列表的重新折叠一致
// 日期归属按活动开始时间(本地时区),跨午夜的活动整体计入开始日
func Aggregate(activities []*models.Activity, dayKey string) *models.DayStats {
	out := &models.DayStats{
		Date:            dayKey,
		CategorySeconds: map[string]int{},
	}

	for _, a := range activities {
		if utils.DayKey(a.StartedAt) != dayKey {
			continue
		}
		out.TotalSeconds += a.DurationSeconds
		out.ActivityCount++
		if a.ProductivityScore >= productiveThreshold {
			out.ProductiveSecs += a.DurationSeconds
		}
		out.CategorySeconds[a.Category] += a.DurationSeconds
	}

	return out
}
