package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"hourlog/internal/core"
)

// Rollup maintenance. Each Recompute* is a full re-read of its source range
// followed by replace-or-delete of exactly one row. Never incremental: the
// same call with the same store contents always produces the same row, which
// is what makes the cascade idempotent and safe to repeat after partial
// failures.

// RecomputeDaily rebuilds the daily rollup for (user, date) from current
// entries, then triggers the weekly and monthly recompute for the same date.
// A failed step aborts the rest of the cascade; the entry rows themselves are
// never rolled back.
func (r *SQLiteRepository) RecomputeDaily(ctx context.Context, userID, date string) error {
	day, err := r.GetDay(ctx, userID, date)
	if err != nil {
		return fmt.Errorf("read entries for daily rollup: %w", err)
	}

	if len(day) > 0 {
		entriesJSON, err := json.Marshal(day)
		if err != nil {
			return fmt.Errorf("encode daily entries: %w", err)
		}
		now := time.Now().UTC()
		_, err = r.db.ExecContext(ctx, upsertDailyStatement,
			userID, date, len(day), string(entriesJSON), now, now)
		if err != nil {
			return fmt.Errorf("upsert daily rollup: %w", err)
		}
	} else {
		if _, err := r.db.ExecContext(ctx, deleteDailyStatement, userID, date); err != nil {
			return fmt.Errorf("delete daily rollup: %w", err)
		}
	}

	slog.DebugContext(ctx, "Daily rollup recomputed",
		"user_id", userID,
		"date", date,
		"total_entries", len(day))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.RecomputeWeekly(gctx, userID, date) })
	g.Go(func() error { return r.RecomputeMonthly(gctx, userID, date) })
	return g.Wait()
}

// RecomputeWeekly rebuilds the weekly rollup covering date from the daily
// rollup rows inside its week range.
func (r *SQLiteRepository) RecomputeWeekly(ctx context.Context, userID, date string) error {
	year, week, err := core.WeekOf(date)
	if err != nil {
		return fmt.Errorf("resolve week for %s: %w", date, err)
	}
	startDate, endDate := core.WeekRange(year, week)

	counts, err := r.dailyCountsInRange(ctx, userID, startDate, endDate)
	if err != nil {
		return fmt.Errorf("read daily rollups for week %d/%d: %w", year, week, err)
	}

	total := 0
	for _, dc := range counts {
		total += dc.Count
	}

	if total > 0 {
		dailyJSON, err := json.Marshal(counts)
		if err != nil {
			return fmt.Errorf("encode weekly daily entries: %w", err)
		}
		now := time.Now().UTC()
		_, err = r.db.ExecContext(ctx, upsertWeeklyStatement,
			userID, year, week, startDate, endDate, total, string(dailyJSON), now, now)
		if err != nil {
			return fmt.Errorf("upsert weekly rollup: %w", err)
		}
	} else {
		if _, err := r.db.ExecContext(ctx, deleteWeeklyStatement, userID, year, week); err != nil {
			return fmt.Errorf("delete weekly rollup: %w", err)
		}
	}

	slog.DebugContext(ctx, "Weekly rollup recomputed",
		"user_id", userID,
		"year", year,
		"week", week,
		"total_entries", total)
	return nil
}

// RecomputeMonthly rebuilds the monthly rollup covering date from the daily
// rollup rows inside its calendar month.
func (r *SQLiteRepository) RecomputeMonthly(ctx context.Context, userID, date string) error {
	t, err := core.ParseDate(date)
	if err != nil {
		return fmt.Errorf("resolve month for %s: %w", date, err)
	}
	year, month := t.Year(), int(t.Month())
	startDate, endDate := core.MonthRange(year, month)

	counts, err := r.dailyCountsInRange(ctx, userID, startDate, endDate)
	if err != nil {
		return fmt.Errorf("read daily rollups for month %d-%02d: %w", year, month, err)
	}

	total := 0
	for _, dc := range counts {
		total += dc.Count
	}

	if total > 0 {
		dailyJSON, err := json.Marshal(counts)
		if err != nil {
			return fmt.Errorf("encode monthly daily entries: %w", err)
		}
		now := time.Now().UTC()
		_, err = r.db.ExecContext(ctx, upsertMonthlyStatement,
			userID, year, month, total, string(dailyJSON), now, now)
		if err != nil {
			return fmt.Errorf("upsert monthly rollup: %w", err)
		}
	} else {
		if _, err := r.db.ExecContext(ctx, deleteMonthlyStatement, userID, year, month); err != nil {
			return fmt.Errorf("delete monthly rollup: %w", err)
		}
	}

	slog.DebugContext(ctx, "Monthly rollup recomputed",
		"user_id", userID,
		"year", year,
		"month", month,
		"total_entries", total)
	return nil
}
