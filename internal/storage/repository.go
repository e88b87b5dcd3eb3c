package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"hourlog/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("not found")

const (
	getDayStatement = `
	SELECT hour, text FROM entries
	WHERE user_id = ? AND date = ?
	ORDER BY hour
	`

	upsertEntryStatement = `
	INSERT OR REPLACE INTO entries (user_id, date, hour, text, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	deleteEntryStatement = `
	DELETE FROM entries
	WHERE user_id = ? AND date = ? AND hour = ?
	`

	getAllStatement = `
	SELECT date, hour, text FROM entries
	WHERE user_id = ?
	ORDER BY date, hour
	`

	countByDateStatement = `
	SELECT date, COUNT(*) FROM entries
	WHERE user_id = ? AND date >= ? AND date <= ?
	GROUP BY date
	ORDER BY date
	`

	upsertDailyStatement = `
	INSERT OR REPLACE INTO daily_aggregations (user_id, date, total_entries, entries, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	deleteDailyStatement = `
	DELETE FROM daily_aggregations
	WHERE user_id = ? AND date = ?
	`

	getDailyStatement = `
	SELECT total_entries, entries, created_at, updated_at FROM daily_aggregations
	WHERE user_id = ? AND date = ?
	`

	dailyCountsInRangeStatement = `
	SELECT date, total_entries FROM daily_aggregations
	WHERE user_id = ? AND date >= ? AND date <= ?
	ORDER BY date
	`

	upsertWeeklyStatement = `
	INSERT OR REPLACE INTO weekly_aggregations (user_id, year, week, start_date, end_date, total_entries, daily_entries, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	deleteWeeklyStatement = `
	DELETE FROM weekly_aggregations
	WHERE user_id = ? AND year = ? AND week = ?
	`

	getWeeklyStatement = `
	SELECT start_date, end_date, total_entries, daily_entries, created_at, updated_at FROM weekly_aggregations
	WHERE user_id = ? AND year = ? AND week = ?
	`

	upsertMonthlyStatement = `
	INSERT OR REPLACE INTO monthly_aggregations (user_id, year, month, total_entries, daily_entries, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	deleteMonthlyStatement = `
	DELETE FROM monthly_aggregations
	WHERE user_id = ? AND year = ? AND month = ?
	`

	getMonthlyStatement = `
	SELECT total_entries, daily_entries, created_at, updated_at FROM monthly_aggregations
	WHERE user_id = ? AND year = ? AND month = ?
	`
)

// SQLiteRepository persists hourly entries and their derived rollups. Entries
// are the source of truth; every rollup row is reconstructable by re-scanning
// entries for its date range.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// Single writer connection: avoids SQLITE_BUSY when the recompute
	// fan-out issues concurrent writes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// GetDay returns the hour to text mapping for one date. Hours without a
// stored entry are absent from the map.
func (r *SQLiteRepository) GetDay(ctx context.Context, userID, date string) (core.DayEntries, error) {
	rows, err := r.db.QueryContext(ctx, getDayStatement, userID, date)
	if err != nil {
		return nil, fmt.Errorf("query day entries: %w", err)
	}
	defer rows.Close()

	day := core.DayEntries{}
	for rows.Next() {
		var hour int
		var text string
		if err := rows.Scan(&hour, &text); err != nil {
			return nil, fmt.Errorf("scan day entry: %w", err)
		}
		day[hour] = text
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate day entries: %w", err)
	}
	return day, nil
}

// SetHour upserts the (user, date, hour) entry when text is non-empty and
// deletes it when text is empty, then recomputes the daily rollup for the
// date. The cascade runs inline; callers observe consistent rollups on
// return.
func (r *SQLiteRepository) SetHour(ctx context.Context, userID, date string, hour int, text string) error {
	now := time.Now().UTC()
	if text != "" {
		_, err := r.db.ExecContext(ctx, upsertEntryStatement, userID, date, hour, text, now, now)
		if err != nil {
			return fmt.Errorf("upsert entry: %w", err)
		}
	} else {
		_, err := r.db.ExecContext(ctx, deleteEntryStatement, userID, date, hour)
		if err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
	}

	return r.RecomputeDaily(ctx, userID, date)
}

// SetMany applies a batch of hour writes for one date in a single
// transaction, then recomputes the daily rollup once.
func (r *SQLiteRepository) SetMany(ctx context.Context, userID, date string, entries []core.HourText) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch write: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, e := range entries {
		if e.Text != "" {
			if _, err := tx.ExecContext(ctx, upsertEntryStatement, userID, date, e.Hour, e.Text, now, now); err != nil {
				return fmt.Errorf("upsert entry hour %d: %w", e.Hour, err)
			}
		} else {
			if _, err := tx.ExecContext(ctx, deleteEntryStatement, userID, date, e.Hour); err != nil {
				return fmt.Errorf("delete entry hour %d: %w", e.Hour, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch write: %w", err)
	}

	slog.InfoContext(ctx, "Batch write applied",
		"user_id", userID,
		"date", date,
		"entries", len(entries))

	return r.RecomputeDaily(ctx, userID, date)
}

// GetAll returns every entry for the user grouped by date. Export only.
func (r *SQLiteRepository) GetAll(ctx context.Context, userID string) (core.AllEntries, error) {
	rows, err := r.db.QueryContext(ctx, getAllStatement, userID)
	if err != nil {
		return nil, fmt.Errorf("query all entries: %w", err)
	}
	defer rows.Close()

	all := core.AllEntries{}
	for rows.Next() {
		var date, text string
		var hour int
		if err := rows.Scan(&date, &hour, &text); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if all[date] == nil {
			all[date] = core.DayEntries{}
		}
		all[date][hour] = text
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return all, nil
}

// CountByDateRange counts raw entries per date within [startDate, endDate].
// This is the live fallback used when no monthly rollup row exists yet; each
// entry counts once, matching the aggregator's semantics.
func (r *SQLiteRepository) CountByDateRange(ctx context.Context, userID, startDate, endDate string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, countByDateStatement, userID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("count entries by date: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var date string
		var count int
		if err := rows.Scan(&date, &count); err != nil {
			return nil, fmt.Errorf("scan date count: %w", err)
		}
		counts[date] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate date counts: %w", err)
	}
	return counts, nil
}

// GetDailyRollup returns the daily aggregation row for (user, date), or
// ErrNotFound when the date has no entries.
func (r *SQLiteRepository) GetDailyRollup(ctx context.Context, userID, date string) (*core.DailyRollup, error) {
	var (
		total       int
		entriesJSON string
		createdAt   time.Time
		updatedAt   time.Time
	)
	err := r.db.QueryRowContext(ctx, getDailyStatement, userID, date).
		Scan(&total, &entriesJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get daily rollup: %w", err)
	}

	entries := core.DayEntries{}
	if err := json.Unmarshal([]byte(entriesJSON), &entries); err != nil {
		return nil, fmt.Errorf("decode daily entries: %w", err)
	}

	return &core.DailyRollup{
		UserID:       userID,
		Date:         date,
		TotalEntries: total,
		Entries:      entries,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// GetWeeklyRollup returns the weekly aggregation row for (user, year, week),
// or ErrNotFound.
func (r *SQLiteRepository) GetWeeklyRollup(ctx context.Context, userID string, year, week int) (*core.WeeklyRollup, error) {
	var (
		startDate, endDate string
		total              int
		dailyJSON          string
		createdAt          time.Time
		updatedAt          time.Time
	)
	err := r.db.QueryRowContext(ctx, getWeeklyStatement, userID, year, week).
		Scan(&startDate, &endDate, &total, &dailyJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get weekly rollup: %w", err)
	}

	var daily []core.DayCount
	if err := json.Unmarshal([]byte(dailyJSON), &daily); err != nil {
		return nil, fmt.Errorf("decode weekly daily entries: %w", err)
	}

	return &core.WeeklyRollup{
		UserID:       userID,
		Year:         year,
		Week:         week,
		StartDate:    startDate,
		EndDate:      endDate,
		TotalEntries: total,
		DailyEntries: daily,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// GetMonthlyRollup returns the monthly aggregation row for
// (user, year, month), or ErrNotFound.
func (r *SQLiteRepository) GetMonthlyRollup(ctx context.Context, userID string, year, month int) (*core.MonthlyRollup, error) {
	var (
		total     int
		dailyJSON string
		createdAt time.Time
		updatedAt time.Time
	)
	err := r.db.QueryRowContext(ctx, getMonthlyStatement, userID, year, month).
		Scan(&total, &dailyJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monthly rollup: %w", err)
	}

	var daily []core.DayCount
	if err := json.Unmarshal([]byte(dailyJSON), &daily); err != nil {
		return nil, fmt.Errorf("decode monthly daily entries: %w", err)
	}

	return &core.MonthlyRollup{
		UserID:       userID,
		Year:         year,
		Month:        month,
		TotalEntries: total,
		DailyEntries: daily,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

// dailyCountsInRange reads (date, total_entries) pairs from the daily rollup
// table for [startDate, endDate], ordered by date. Days without a rollup row
// are simply absent.
func (r *SQLiteRepository) dailyCountsInRange(ctx context.Context, userID, startDate, endDate string) ([]core.DayCount, error) {
	rows, err := r.db.QueryContext(ctx, dailyCountsInRangeStatement, userID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("query daily rollups in range: %w", err)
	}
	defer rows.Close()

	var counts []core.DayCount
	for rows.Next() {
		var dc core.DayCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan daily rollup: %w", err)
		}
		counts = append(counts, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily rollups: %w", err)
	}
	return counts, nil
}
