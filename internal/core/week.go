package core

import (
	"fmt"
	"time"
)

// Week numbering for rollups. This is a Monday-anchored approximation of ISO
// week numbering, not ISO-8601 itself: the number comes from a day-of-year
// offset against January 1st's weekday, and the date range is anchored at
// January 4th. Both directions are pure functions of their inputs; weekly and
// monthly rollups stay mutually consistent only because every caller goes
// through these two functions.

// WeekNumber returns the week number of t within its calendar year.
func WeekNumber(t time.Time) int {
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	days := t.YearDay() - 1
	offset := days + int(jan1.Weekday()) + 1
	return (offset + 6) / 7
}

// WeekOf returns the (year, week) pair for a canonical date string.
func WeekOf(date string) (year, week int, err error) {
	t, err := ParseDate(date)
	if err != nil {
		return 0, 0, err
	}
	return t.Year(), WeekNumber(t), nil
}

// WeekRange returns the inclusive [start, end] date strings of the given
// week. The start is the Monday nearest January 4th of the year, shifted by
// whole weeks.
func WeekRange(year, week int) (startDate, endDate string) {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	start := jan4.AddDate(0, 0, -(int(jan4.Weekday())-1)+(week-1)*7)
	end := start.AddDate(0, 0, 6)
	return start.Format(DateLayout), end.Format(DateLayout)
}

// MonthRange returns inclusive lexical bounds covering every date key in the
// given calendar month. The "-31" upper bound over-selects for short months;
// that is harmless because only existing rows inside the month can match.
func MonthRange(year, month int) (startDate, endDate string) {
	return fmt.Sprintf("%04d-%02d-01", year, month), fmt.Sprintf("%04d-%02d-31", year, month)
}
