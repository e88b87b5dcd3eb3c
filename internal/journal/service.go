// Package journal is the read/write façade over the entry store and its
// rollups. Handlers talk to this package only.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hourlog/internal/amqp"
	"hourlog/internal/core"
	"hourlog/internal/export"
	"hourlog/internal/storage"
)

// Service orchestrates journal operations across the SQLite store and the
// optional AMQP notifier.
type Service struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewService(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *Service {
	return &Service{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// GetDay returns the hour to text mapping for one date.
func (s *Service) GetDay(ctx context.Context, userID, date string) (core.DayEntries, error) {
	if err := validateKey(userID, date); err != nil {
		return nil, err
	}
	return s.storage.GetDay(ctx, userID, date)
}

// SetHour writes or deletes a single hour entry. The rollup cascade completes
// before this returns; the change notification is fire-and-forget.
func (s *Service) SetHour(ctx context.Context, userID, date string, hour int, text string) error {
	if err := validateKey(userID, date); err != nil {
		return err
	}
	if err := core.ValidateHour(hour); err != nil {
		return err
	}

	if err := s.storage.SetHour(ctx, userID, date, hour, text); err != nil {
		return fmt.Errorf("set hour: %w", err)
	}

	s.notifyChanged(ctx, userID, date)
	return nil
}

// SetMany applies a batch of hour writes for one date, recomputing the
// rollups once.
func (s *Service) SetMany(ctx context.Context, userID, date string, entries []core.HourText) error {
	if err := validateKey(userID, date); err != nil {
		return err
	}
	for _, e := range entries {
		if err := core.ValidateHour(e.Hour); err != nil {
			return fmt.Errorf("hour %d: %w", e.Hour, err)
		}
	}

	if err := s.storage.SetMany(ctx, userID, date, entries); err != nil {
		return fmt.Errorf("set many: %w", err)
	}

	s.notifyChanged(ctx, userID, date)
	return nil
}

// GetMonthCounts returns entry counts per date for a calendar month. The
// precomputed monthly rollup is preferred; when it does not exist yet the
// counts come from a live scan of raw entries, which yields the same numbers.
func (s *Service) GetMonthCounts(ctx context.Context, userID string, year, month int) (map[string]int, error) {
	if userID == "" {
		return nil, core.ErrEmptyUserID
	}
	if month < 1 || month > 12 {
		return nil, core.ErrInvalidDate
	}

	rollup, err := s.storage.GetMonthlyRollup(ctx, userID, year, month)
	if err == nil {
		counts := make(map[string]int, len(rollup.DailyEntries))
		for _, dc := range rollup.DailyEntries {
			counts[dc.Date] = dc.Count
		}
		return counts, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get monthly rollup: %w", err)
	}

	startDate, endDate := core.MonthRange(year, month)
	counts, err := s.storage.CountByDateRange(ctx, userID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("live month counts: %w", err)
	}
	return counts, nil
}

// GetAll returns every entry grouped by date.
func (s *Service) GetAll(ctx context.Context, userID string) (core.AllEntries, error) {
	if userID == "" {
		return nil, core.ErrEmptyUserID
	}
	return s.storage.GetAll(ctx, userID)
}

// ExportRange renders the user's entries in [start, end] as Markdown.
func (s *Service) ExportRange(ctx context.Context, userID, start, end string, includeEmpty bool) (string, error) {
	if userID == "" {
		return "", core.ErrEmptyUserID
	}

	all, err := s.storage.GetAll(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("read entries for export: %w", err)
	}
	return export.Markdown(all, start, end, includeEmpty)
}

// notifyChanged publishes the entry-changed event. Publish failures never
// fail the write; the entry and its rollups are already durable.
func (s *Service) notifyChanged(ctx context.Context, userID, date string) {
	if s.amqpClient == nil {
		return
	}
	if err := s.amqpClient.PublishEntryChanged(ctx, userID, date); err != nil {
		slog.ErrorContext(ctx, "Failed to publish entry changed message",
			"user_id", userID,
			"date", date,
			"error", err)
	}
}

// Close closes both storage and AMQP connections.
func (s *Service) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close journal service: %v", errs)
	}

	return nil
}

func validateKey(userID, date string) error {
	if userID == "" {
		return core.ErrEmptyUserID
	}
	return core.ValidateDate(date)
}
