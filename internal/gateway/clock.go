package gateway

import (
	"context"
	"fmt"
	"time"
)

// ClockCapability is the name of the local date and time capability.
const ClockCapability = "get_current_datetime"

// TradingHours is the market session window, Monday to Friday.
type TradingHours struct {
	Location  *time.Location
	OpenHour  int
	CloseHour int
}

func (h TradingHours) local(t time.Time) time.Time {
	if h.Location == nil {
		return t
	}
	return t.In(h.Location)
}

// IsWeekend reports Saturday or Sunday in the market zone.
func (h TradingHours) IsWeekend(t time.Time) bool {
	wd := h.local(t).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsOpen reports whether t falls inside the trading window.
func (h TradingHours) IsOpen(t time.Time) bool {
	if h.IsWeekend(t) {
		return false
	}
	hour := h.local(t).Hour()
	return hour >= h.OpenHour && hour < h.CloseHour
}

var vietnameseDays = [...]string{
	time.Sunday:    "Chủ Nhật",
	time.Monday:    "Thứ Hai",
	time.Tuesday:   "Thứ Ba",
	time.Wednesday: "Thứ Tư",
	time.Thursday:  "Thứ Năm",
	time.Friday:    "Thứ Sáu",
	time.Saturday:  "Thứ Bảy",
}

// ClockOperation reports the current date and time in the market zone.
type ClockOperation struct {
	hours TradingHours
	now   func() time.Time
}

// NewClockOperation creates the local clock capability.
func NewClockOperation(hours TradingHours, now func() time.Time) *ClockOperation {
	if now == nil {
		now = time.Now
	}
	return &ClockOperation{hours: hours, now: now}
}

func (c *ClockOperation) Name() string { return ClockCapability }

func (c *ClockOperation) Descriptor() Descriptor {
	return Descriptor{
		Name:        ClockCapability,
		Description: "Get the current date and time in the market time zone, including whether the market is in trading hours.",
	}
}

// Call never fails.
func (c *ClockOperation) Call(_ context.Context, _ map[string]any) Result {
	now := c.now()
	local := c.hours.local(now)
	day := vietnameseDays[local.Weekday()]
	return Result{Content: map[string]any{
		"date":             local.Format("2006-01-02"),
		"time":             local.Format("15:04:05"),
		"datetime":         local.Format("2006-01-02 15:04:05"),
		"date_vn":          local.Format("02/01/2006"),
		"day_name":         local.Weekday().String(),
		"day_name_vn":      day,
		"full_vn":          fmt.Sprintf("%s tháng %s năm %s", local.Format("02"), local.Format("01"), local.Format("2006")),
		"timezone":         local.Location().String(),
		"is_trading_hours": c.hours.IsOpen(now),
		"is_weekend":       c.hours.IsWeekend(now),
	}}
}
