package market

import (
	"fmt"
	"time"

	"github.com/twquant/twse-agents/pkg/apperrors"
	"github.com/twquant/twse-agents/pkg/models"
)

const calendarDateLayout = "2006-01-02"

// twseHolidays maps YYYY-MM-DD (Asia/Taipei) to the holiday name.
// Fixed-date table; lunar-calendar holidays are listed per year.
var twseHolidays = map[string]string{
	"2025-01-01": "元旦",
	"2025-01-27": "農曆除夕前一日",
	"2025-01-28": "農曆除夕",
	"2025-01-29": "春節",
	"2025-01-30": "春節",
	"2025-01-31": "春節",
	"2025-02-28": "和平紀念日",
	"2025-04-03": "兒童節前一日",
	"2025-04-04": "兒童節/民族掃墓節",
	"2025-05-01": "勞動節",
	"2025-05-30": "端午節補假",
	"2025-05-31": "端午節",
	"2025-10-06": "中秋節",
	"2025-10-10": "國慶日",
	"2026-01-01": "元旦",
	"2026-02-16": "農曆除夕",
	"2026-02-17": "春節",
	"2026-02-18": "春節",
	"2026-02-19": "春節",
	"2026-02-20": "春節",
	"2026-02-27": "和平紀念日補假",
	"2026-04-03": "兒童節前一日",
	"2026-04-06": "民族掃墓節補假",
	"2026-05-01": "勞動節",
	"2026-06-19": "端午節",
	"2026-09-25": "中秋節",
	"2026-10-09": "國慶日補假",
}

// Calendar answers trading-day and trading-hours questions for the TWSE.
// All date math happens in Asia/Taipei; everything else in the system
// stays in UTC.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// NewCalendar loads the Asia/Taipei location
func NewCalendar() (*Calendar, error) {
	loc, err := time.LoadLocation("Asia/Taipei")
	if err != nil {
		return nil, fmt.Errorf("failed to load Asia/Taipei: %w", err)
	}
	return &Calendar{loc: loc, now: time.Now}, nil
}

// Check classifies one date. Accepts YYYY-MM-DD; empty means today.
func (c *Calendar) Check(date string) (*models.TradingDayInfo, error) {
	var day time.Time
	if date == "" {
		day = c.now().In(c.loc)
		date = day.Format(calendarDateLayout)
	} else {
		parsed, err := time.ParseInLocation(calendarDateLayout, date, c.loc)
		if err != nil {
			return nil, apperrors.Validationf("bad_date", "date must be YYYY-MM-DD").WithField("date")
		}
		day = parsed
	}

	info := &models.TradingDayInfo{Date: date}

	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		info.IsWeekend = true
	}
	if name, ok := twseHolidays[date]; ok {
		info.IsHoliday = true
		info.HolidayName = name
	}
	info.IsTradingDay = !info.IsWeekend && !info.IsHoliday

	return info, nil
}

// Status reports whether the market is open right now.
// TWSE regular session runs 09:00–13:30 Asia/Taipei.
func (c *Calendar) Status() models.MarketStatus {
	now := c.now().In(c.loc)

	info, _ := c.Check(now.Format(calendarDateLayout))
	if !info.IsTradingDay {
		status := "closed"
		if info.IsHoliday {
			status = "holiday"
		}
		return models.MarketStatus{IsTradingDay: false, IsTradingHours: false, Status: status}
	}

	openAt := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, c.loc)
	closeAt := time.Date(now.Year(), now.Month(), now.Day(), 13, 30, 0, 0, c.loc)

	inHours := !now.Before(openAt) && !now.After(closeAt)
	status := "closed"
	if inHours {
		status = "open"
	}
	return models.MarketStatus{IsTradingDay: true, IsTradingHours: inHours, Status: status}
}
