package worker

import (
	"context"
	"fmt"
	"log/slog"

	"hourlog/internal/amqp"
	"hourlog/internal/sheets"
	"hourlog/internal/storage"
)

// BackupWorker mirrors changed journal days to an external backup. It reacts
// to entry-changed messages; the day is re-read from the store at handling
// time, so duplicate or out-of-order deliveries all converge to the current
// contents.
type BackupWorker struct {
	storage *storage.SQLiteRepository
	backup  sheets.BackupWriter
}

func NewBackupWorker(storage *storage.SQLiteRepository, backup sheets.BackupWriter) *BackupWorker {
	return &BackupWorker{
		storage: storage,
		backup:  backup,
	}
}

// HandleEntryChanged processes a single entry-changed message.
func (w *BackupWorker) HandleEntryChanged(ctx context.Context, msg *amqp.EntryChangedMessage) error {
	slog.InfoContext(ctx, "Processing entry changed message",
		"user_id", msg.UserID,
		"date", msg.Date)

	day, err := w.storage.GetDay(ctx, msg.UserID, msg.Date)
	if err != nil {
		return fmt.Errorf("read day from storage: %w", err)
	}

	if err := w.backup.WriteDay(ctx, msg.UserID, msg.Date, day); err != nil {
		return fmt.Errorf("write day to backup: %w", err)
	}

	return nil
}

// BackupAll mirrors every stored day for the given user. Used at worker
// startup to catch days whose notifications were missed while it was down.
func (w *BackupWorker) BackupAll(ctx context.Context, userID string) error {
	all, err := w.storage.GetAll(ctx, userID)
	if err != nil {
		return fmt.Errorf("read all entries: %w", err)
	}

	for date, day := range all {
		if err := w.backup.WriteDay(ctx, userID, date, day); err != nil {
			return fmt.Errorf("backup %s: %w", date, err)
		}
	}

	slog.InfoContext(ctx, "Full backup completed",
		"user_id", userID,
		"days", len(all))
	return nil
}
