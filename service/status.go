package service

import (
	"strings"
	"time"

	"group-voting-backend/models"
)

// DeriveStatus 根据起止日期推导投票状态
//
// now早于开始日期为upcoming，晚于结束日期为completed，其余为active。
// 两项检查按顺序独立进行，因此开始日期晚于结束日期时结果仍然确定。
// 永远不会返回cancelled。
func DeriveStatus(startDate, endDate string, now time.Time) models.PollStatus {
	if start, ok := ParseDate(startDate); ok && now.Before(start) {
		return models.StatusUpcoming
	}
	if end, ok := ParseDate(endDate); ok && now.After(end) {
		return models.StatusCompleted
	}
	return models.StatusActive
}

// ParseDate 解析日历日期，支持 YYYY-MM-DD（按UTC零点）和RFC3339。
// 空值或无法解析的值视为未设置。
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// ValidDateRange 两个日期都有效时要求开始不晚于结束，任一未设置时视为有效
func ValidDateRange(start, end string) bool {
	s, okStart := ParseDate(start)
	e, okEnd := ParseDate(end)
	if !okStart || !okEnd {
		return true
	}
	return !s.After(e)
}
