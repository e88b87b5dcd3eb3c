package sheets

import (
	"context"

	"hourlog/internal/core"
)

// Ports for outbound backup adapters.
type (
	// BackupWriter mirrors one day's entries to an external store. The write
	// path never depends on it; consumers re-read the day before writing, so
	// replaying a stale notification converges to the current state.
	BackupWriter interface {
		WriteDay(ctx context.Context, userID, date string, entries core.DayEntries) error
	}
)
