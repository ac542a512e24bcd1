package services

import (
	"time"

	"github.com/jinzhu/now"
)

// Clock resolves calendar periods in the service timezone.
type Clock struct {
	cfg *now.Config
	Now func() time.Time
}

func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{
		cfg: &now.Config{WeekStartDay: time.Monday, TimeLocation: loc},
		Now: time.Now,
	}
}

func (c Clock) Location() *time.Location {
	return c.cfg.TimeLocation
}

func (c Clock) at(t time.Time) *now.Now {
	return c.cfg.With(t.In(c.cfg.TimeLocation))
}

// Day returns [start, end) of the calendar day containing t.
func (c Clock) Day(t time.Time) (time.Time, time.Time) {
	start := c.at(t).BeginningOfDay()
	return start, start.AddDate(0, 0, 1)
}

func (c Clock) Week(t time.Time) (time.Time, time.Time) {
	start := c.at(t).BeginningOfWeek()
	return start, start.AddDate(0, 0, 7)
}

func (c Clock) Month(t time.Time) (time.Time, time.Time) {
	start := c.at(t).BeginningOfMonth()
	return start, start.AddDate(0, 1, 0)
}

func (c Clock) Year(t time.Time) (time.Time, time.Time) {
	start := c.at(t).BeginningOfYear()
	return start, start.AddDate(1, 0, 0)
}

func (c Clock) Today() (time.Time, time.Time) {
	return c.Day(c.Now())
}

func (c Clock) ThisMonth() (time.Time, time.Time) {
	return c.Month(c.Now())
}

// DayKey and MonthKey label buckets and alert periods.
func (c Clock) DayKey(t time.Time) string {
	return t.In(c.cfg.TimeLocation).Format("2006-01-02")
}

func (c Clock) MonthKey(t time.Time) string {
	return t.In(c.cfg.TimeLocation).Format("2006-01")
}
