package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"hourlog/internal/core"
)

func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSetHourAndGetDay(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.SetHour(ctx, "u1", "2024-03-13", 9, "standup"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}

	day, err := repo.GetDay(ctx, "u1", "2024-03-13")
	if err != nil {
		t.Fatalf("GetDay failed: %v", err)
	}
	if got := day[9]; got != "standup" {
		t.Errorf("day[9] = %q, want %q", got, "standup")
	}
	if len(day) != 1 {
		t.Errorf("expected 1 entry, got %d", len(day))
	}

	// Overwrite
	if err := repo.SetHour(ctx, "u1", "2024-03-13", 9, "retro"); err != nil {
		t.Fatalf("SetHour overwrite failed: %v", err)
	}
	day, err = repo.GetDay(ctx, "u1", "2024-03-13")
	if err != nil {
		t.Fatalf("GetDay failed: %v", err)
	}
	if got := day[9]; got != "retro" {
		t.Errorf("day[9] = %q after overwrite, want %q", got, "retro")
	}

	// Empty text deletes
	if err := repo.SetHour(ctx, "u1", "2024-03-13", 9, ""); err != nil {
		t.Fatalf("SetHour delete failed: %v", err)
	}
	day, err = repo.GetDay(ctx, "u1", "2024-03-13")
	if err != nil {
		t.Fatalf("GetDay failed: %v", err)
	}
	if _, ok := day[9]; ok {
		t.Error("hour 9 still present after empty-text write")
	}
}

func TestDailyRollupMatchesEntries(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	writes := map[int]string{8: "gym", 12: "lunch", 21: "reading"}
	for hour, text := range writes {
		if err := repo.SetHour(ctx, "u1", "2024-03-13", hour, text); err != nil {
			t.Fatalf("SetHour(%d) failed: %v", hour, err)
		}
	}

	daily, err := repo.GetDailyRollup(ctx, "u1", "2024-03-13")
	if err != nil {
		t.Fatalf("GetDailyRollup failed: %v", err)
	}
	if daily.TotalEntries != len(writes) {
		t.Errorf("TotalEntries = %d, want %d", daily.TotalEntries, len(writes))
	}
	for hour, text := range writes {
		if daily.Entries[hour] != text {
			t.Errorf("Entries[%d] = %q, want %q", hour, daily.Entries[hour], text)
		}
	}
}

func TestSetManyRoundTrip(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	// Hour 17 previously set, hour 9 unset.
	if err := repo.SetHour(ctx, "u1", "2024-03-10", 17, "old note"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}

	batch := []core.HourText{
		{Hour: 9, Text: "standup"},
		{Hour: 17, Text: ""},
	}
	if err := repo.SetMany(ctx, "u1", "2024-03-10", batch); err != nil {
		t.Fatalf("SetMany failed: %v", err)
	}

	day, err := repo.GetDay(ctx, "u1", "2024-03-10")
	if err != nil {
		t.Fatalf("GetDay failed: %v", err)
	}
	if len(day) != 1 || day[9] != "standup" {
		t.Errorf("day = %v, want map[9:standup]", day)
	}

	monthly, err := repo.GetMonthlyRollup(ctx, "u1", 2024, 3)
	if err != nil {
		t.Fatalf("GetMonthlyRollup failed: %v", err)
	}
	found := false
	for _, dc := range monthly.DailyEntries {
		if dc.Date == "2024-03-10" {
			found = true
			if dc.Count != 1 {
				t.Errorf("count for 2024-03-10 = %d, want 1", dc.Count)
			}
		}
	}
	if !found {
		t.Error("2024-03-10 missing from monthly rollup")
	}
}

func TestWeeklyRollupInvariant(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	// Tuesday and Wednesday of week 11/2024 ([2024-03-11, 2024-03-17]).
	if err := repo.SetHour(ctx, "u1", "2024-03-12", 10, "a"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}
	if err := repo.SetHour(ctx, "u1", "2024-03-13", 11, "b"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}
	if err := repo.SetHour(ctx, "u1", "2024-03-13", 15, "c"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}

	weekly, err := repo.GetWeeklyRollup(ctx, "u1", 2024, 11)
	if err != nil {
		t.Fatalf("GetWeeklyRollup failed: %v", err)
	}

	sum := 0
	for _, dc := range weekly.DailyEntries {
		if dc.Date < weekly.StartDate || dc.Date > weekly.EndDate {
			t.Errorf("date %s outside week range [%s, %s]", dc.Date, weekly.StartDate, weekly.EndDate)
		}
		daily, err := repo.GetDailyRollup(ctx, "u1", dc.Date)
		if err != nil {
			t.Fatalf("GetDailyRollup(%s) failed: %v", dc.Date, err)
		}
		if dc.Count != daily.TotalEntries {
			t.Errorf("weekly count for %s = %d, daily rollup has %d", dc.Date, dc.Count, daily.TotalEntries)
		}
		sum += dc.Count
	}
	if weekly.TotalEntries != sum {
		t.Errorf("weekly TotalEntries = %d, sum of daily counts = %d", weekly.TotalEntries, sum)
	}
	if weekly.TotalEntries != 3 {
		t.Errorf("weekly TotalEntries = %d, want 3", weekly.TotalEntries)
	}
}

func TestMonthlyRollupInvariant(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.SetHour(ctx, "u1", "2024-03-05", 8, "a"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}
	if err := repo.SetHour(ctx, "u1", "2024-03-20", 9, "b"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}
	if err := repo.SetHour(ctx, "u1", "2024-04-01", 9, "other month"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}

	monthly, err := repo.GetMonthlyRollup(ctx, "u1", 2024, 3)
	if err != nil {
		t.Fatalf("GetMonthlyRollup failed: %v", err)
	}
	if monthly.TotalEntries != 2 {
		t.Errorf("march TotalEntries = %d, want 2", monthly.TotalEntries)
	}
	for _, dc := range monthly.DailyEntries {
		if dc.Date < "2024-03-01" || dc.Date > "2024-03-31" {
			t.Errorf("date %s outside march", dc.Date)
		}
	}

	april, err := repo.GetMonthlyRollup(ctx, "u1", 2024, 4)
	if err != nil {
		t.Fatalf("GetMonthlyRollup(april) failed: %v", err)
	}
	if april.TotalEntries != 1 {
		t.Errorf("april TotalEntries = %d, want 1", april.TotalEntries)
	}
}

func TestRecomputeDailyIdempotent(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.SetHour(ctx, "u1", "2024-03-13", 9, "standup"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}
	if err := repo.SetHour(ctx, "u1", "2024-03-13", 14, "review"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}

	first, err := repo.GetDailyRollup(ctx, "u1", "2024-03-13")
	if err != nil {
		t.Fatalf("GetDailyRollup failed: %v", err)
	}

	if err := repo.RecomputeDaily(ctx, "u1", "2024-03-13"); err != nil {
		t.Fatalf("RecomputeDaily failed: %v", err)
	}
	second, err := repo.GetDailyRollup(ctx, "u1", "2024-03-13")
	if err != nil {
		t.Fatalf("GetDailyRollup after recompute failed: %v", err)
	}

	if first.TotalEntries != second.TotalEntries {
		t.Errorf("TotalEntries changed: %d -> %d", first.TotalEntries, second.TotalEntries)
	}
	if len(first.Entries) != len(second.Entries) {
		t.Fatalf("Entries size changed: %d -> %d", len(first.Entries), len(second.Entries))
	}
	for hour, text := range first.Entries {
		if second.Entries[hour] != text {
			t.Errorf("Entries[%d] changed: %q -> %q", hour, text, second.Entries[hour])
		}
	}
}

func TestDeletionCascade(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	// Single entry in its week and month.
	if err := repo.SetHour(ctx, "u1", "2024-03-13", 9, "only one"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}
	if _, err := repo.GetDailyRollup(ctx, "u1", "2024-03-13"); err != nil {
		t.Fatalf("daily rollup missing before delete: %v", err)
	}

	// Empty text on the last remaining hour removes all three rollup levels.
	if err := repo.SetHour(ctx, "u1", "2024-03-13", 9, ""); err != nil {
		t.Fatalf("SetHour delete failed: %v", err)
	}

	if _, err := repo.GetDailyRollup(ctx, "u1", "2024-03-13"); !errors.Is(err, ErrNotFound) {
		t.Errorf("daily rollup: got %v, want ErrNotFound", err)
	}
	if _, err := repo.GetWeeklyRollup(ctx, "u1", 2024, 11); !errors.Is(err, ErrNotFound) {
		t.Errorf("weekly rollup: got %v, want ErrNotFound", err)
	}
	if _, err := repo.GetMonthlyRollup(ctx, "u1", 2024, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("monthly rollup: got %v, want ErrNotFound", err)
	}
}

func TestCountByDateRangeMatchesRollup(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.SetHour(ctx, "u1", "2024-03-05", 8, "a"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}
	if err := repo.SetHour(ctx, "u1", "2024-03-05", 9, "b"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}
	if err := repo.SetHour(ctx, "u1", "2024-03-20", 10, "c"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}

	start, end := core.MonthRange(2024, 3)
	live, err := repo.CountByDateRange(ctx, "u1", start, end)
	if err != nil {
		t.Fatalf("CountByDateRange failed: %v", err)
	}

	monthly, err := repo.GetMonthlyRollup(ctx, "u1", 2024, 3)
	if err != nil {
		t.Fatalf("GetMonthlyRollup failed: %v", err)
	}

	if len(live) != len(monthly.DailyEntries) {
		t.Fatalf("live counts %d dates, rollup has %d", len(live), len(monthly.DailyEntries))
	}
	for _, dc := range monthly.DailyEntries {
		if live[dc.Date] != dc.Count {
			t.Errorf("live count for %s = %d, rollup has %d", dc.Date, live[dc.Date], dc.Count)
		}
	}
}

func TestGetAllGroupsByDate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.SetHour(ctx, "u1", "2024-01-01", 8, "gym"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}
	if err := repo.SetHour(ctx, "u1", "2024-01-01", 20, "dinner"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}
	if err := repo.SetHour(ctx, "u1", "2024-02-14", 12, "lunch"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}

	all, err := repo.GetAll(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 dates, got %d", len(all))
	}
	if all["2024-01-01"][8] != "gym" || all["2024-01-01"][20] != "dinner" {
		t.Errorf("2024-01-01 = %v", all["2024-01-01"])
	}
	if all["2024-02-14"][12] != "lunch" {
		t.Errorf("2024-02-14 = %v", all["2024-02-14"])
	}
}

func TestUserScoping(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.SetHour(ctx, "alice", "2024-03-13", 9, "alice note"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}
	if err := repo.SetHour(ctx, "bob", "2024-03-13", 9, "bob note"); err != nil {
		t.Fatalf("SetHour failed: %v", err)
	}

	aliceDay, err := repo.GetDay(ctx, "alice", "2024-03-13")
	if err != nil {
		t.Fatalf("GetDay failed: %v", err)
	}
	if aliceDay[9] != "alice note" {
		t.Errorf("alice sees %q", aliceDay[9])
	}

	aliceMonthly, err := repo.GetMonthlyRollup(ctx, "alice", 2024, 3)
	if err != nil {
		t.Fatalf("GetMonthlyRollup failed: %v", err)
	}
	if aliceMonthly.TotalEntries != 1 {
		t.Errorf("alice monthly total = %d, want 1", aliceMonthly.TotalEntries)
	}

	// Deleting bob's entry must not disturb alice's rollups.
	if err := repo.SetHour(ctx, "bob", "2024-03-13", 9, ""); err != nil {
		t.Fatalf("SetHour delete failed: %v", err)
	}
	if _, err := repo.GetMonthlyRollup(ctx, "bob", 2024, 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("bob monthly rollup: got %v, want ErrNotFound", err)
	}
	if _, err := repo.GetMonthlyRollup(ctx, "alice", 2024, 3); err != nil {
		t.Errorf("alice monthly rollup vanished: %v", err)
	}
}
