package utils

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TimeInRange 检查当前时间是否在指定范围内
func TimeInRange(startTime, endTime string) (bool, error) {
	now := time.Now()

	start, err := time.Parse("15:04", startTime)
	if err != nil {
		return false, fmt.Errorf("invalid start time format: %w", err)
	}

	end, err := time.Parse("15:04", endTime)
	if err != nil {
		return false, fmt.Errorf("invalid end time format: %w", err)
	}

	// 将时间应用到今天
	startToday := time.Date(now.Year(), now.Month(), now.Day(),
		start.Hour(), start.Minute(), 0, 0, now.Location())
	endToday := time.Date(now.Year(), now.Month(), now.Day(),
		end.Hour(), end.Minute(), 0, 0, now.Location())

	// 处理跨天的情况
	if endToday.Before(startToday) {
		endToday = endToday.Add(24 * time.Hour)
	}

	return now.After(startToday) && now.Before(endToday), nil
}

// IsDayInList 检查星期几是否在列表中
func IsDayInList(day time.Weekday, days []int) bool {
	dayInt := int(day)
	for _, d := range days {
		if d == dayInt {
			return true
		}
	}
	return false
}

// ExtractDomain 从 URL 中提取域名
// 解析失败或没有主机名时返回空字符串
func ExtractDomain(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	return strings.TrimPrefix(host, "www.")
}

// DayKey 返回时间对应的本地日期键
// 跨午夜的活动按开始时间整体归属开始日
func DayKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// FormatCountdown 格式化倒计时 mm:ss
func FormatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// TruncateString 截断字符串
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
