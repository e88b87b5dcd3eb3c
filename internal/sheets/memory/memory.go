// Package memory is an in-process BackupWriter used in tests and when no
// spreadsheet is configured.
package memory

import (
	"context"
	"sync"

	"hourlog/internal/core"
	ports "hourlog/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	days map[string]core.DayEntries // keyed by userID + "|" + date
}

var _ ports.BackupWriter = (*Store)(nil)

func New() *Store {
	return &Store{days: make(map[string]core.DayEntries)}
}

func (s *Store) WriteDay(_ context.Context, userID, date string, entries core.DayEntries) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userID + "|" + date
	if len(entries) == 0 {
		delete(s.days, key)
		return nil
	}

	copied := make(core.DayEntries, len(entries))
	for hour, text := range entries {
		copied[hour] = text
	}
	s.days[key] = copied
	return nil
}

// Day returns the stored snapshot for (user, date), or nil.
func (s *Store) Day(userID, date string) core.DayEntries {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.days[userID+"|"+date]
}
