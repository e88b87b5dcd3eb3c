package core

import (
	"errors"
	"time"
)

const (
	// DateLayout is the canonical YYYY-MM-DD representation used as a key
	// throughout the store. Lexical order on these strings equals
	// chronological order, which range scans rely on.
	DateLayout = "2006-01-02"

	MinHour = 0
	MaxHour = 23
)

type (
	// HourlyEntry is the source-of-truth record: one per (user, date, hour).
	// Absence of a row means "no entry"; an entry never stores empty text.
	HourlyEntry struct {
		UserID    string
		Date      string
		Hour      int
		Text      string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// DayEntries maps hour to text for one date.
	DayEntries map[int]string

	// AllEntries maps date to that day's entries.
	AllEntries map[string]DayEntries

	// DayCount is one element of a rollup's per-day breakdown.
	DayCount struct {
		Date  string `json:"date"`
		Count int    `json:"count"`
	}

	// DailyRollup is the per-date aggregation derived from HourlyEntry rows.
	// TotalEntries always equals len(Entries); a rollup with zero entries is
	// deleted, never stored.
	DailyRollup struct {
		UserID       string
		Date         string
		TotalEntries int
		Entries      DayEntries
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	// WeeklyRollup aggregates DailyRollup rows over one journal week.
	WeeklyRollup struct {
		UserID       string
		Year         int
		Week         int
		StartDate    string
		EndDate      string
		TotalEntries int
		DailyEntries []DayCount
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	// MonthlyRollup aggregates DailyRollup rows over one calendar month.
	MonthlyRollup struct {
		UserID       string
		Year         int
		Month        int
		TotalEntries int
		DailyEntries []DayCount
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	// HourText is one element of a batch write.
	HourText struct {
		Hour int    `json:"hour"`
		Text string `json:"text"`
	}
)

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidHour  = errors.New("invalid hour")
	ErrInvalidRange = errors.New("invalid range")
	ErrEmptyUserID  = errors.New("empty user id")
)

// ValidateDate checks that s is a real calendar date in YYYY-MM-DD form.
func ValidateDate(s string) error {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return ErrInvalidDate
	}
	// Accept only the canonical zero-padded spelling: the round-trip check
	// rejects anything the parser tolerates but Format would not reproduce.
	if t.Format(DateLayout) != s {
		return ErrInvalidDate
	}
	return nil
}

// ValidateHour checks the 24-hour clock range.
func ValidateHour(hour int) error {
	if hour < MinHour || hour > MaxHour {
		return ErrInvalidHour
	}
	return nil
}

// ParseDate parses a canonical date string at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	if err := ValidateDate(s); err != nil {
		return time.Time{}, err
	}
	return time.Parse(DateLayout, s)
}
