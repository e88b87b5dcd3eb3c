// Command hourlog-migrate copies journal entries from an existing SQLite
// database into a fresh one, rebuilding every daily, weekly and monthly
// rollup along the way. Useful when importing data written by an older
// deployment whose aggregates are missing or stale.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"sort"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"hourlog/internal/core"
	applog "hourlog/internal/log"
	"hourlog/internal/storage"
)

func main() {
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	src := flag.String("src", "", "path to the source SQLite database (required)")
	dst := flag.String("dst", "", "path to the destination SQLite database (required)")
	user := flag.String("user", "", "override the user id on every imported entry (optional)")
	flag.Parse()

	if *src == "" || *dst == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()

	srcDB, err := sql.Open("sqlite", *src)
	if err != nil {
		logger.Error("Failed to open source database", "error", err, "path", *src)
		os.Exit(1)
	}
	defer srcDB.Close()

	repo, err := storage.NewSQLiteRepository(*dst)
	if err != nil {
		logger.Error("Failed to initialize destination repository", "error", err, "path", *dst)
		os.Exit(1)
	}
	defer repo.Close()

	days, err := readSourceEntries(ctx, srcDB, *user)
	if err != nil {
		logger.Error("Failed to read source entries", "error", err)
		os.Exit(1)
	}

	// Stable import order makes reruns and log diffs comparable.
	keys := make([]dayKey, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].userID != keys[j].userID {
			return keys[i].userID < keys[j].userID
		}
		return keys[i].date < keys[j].date
	})

	imported := 0
	for _, k := range keys {
		entries := days[k]
		if err := repo.SetMany(ctx, k.userID, k.date, entries); err != nil {
			logger.Error("Failed to import day", "user_id", k.userID, "date", k.date, "error", err)
			os.Exit(1)
		}
		imported += len(entries)
	}

	logger.Info("Import complete", "days", len(keys), "entries", imported)
}

type dayKey struct {
	userID string
	date   string
}

// readSourceEntries loads every entry from the source database, grouped by
// (user, date). Rows with invalid dates or hours are skipped with a warning
// rather than aborting the whole import.
func readSourceEntries(ctx context.Context, db *sql.DB, userOverride string) (map[dayKey][]core.HourText, error) {
	rows, err := db.QueryContext(ctx, "SELECT user_id, date, hour, text FROM entries ORDER BY user_id, date, hour")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := make(map[dayKey][]core.HourText)
	skipped := 0
	for rows.Next() {
		var userID, date, text string
		var hour int
		if err := rows.Scan(&userID, &date, &hour, &text); err != nil {
			return nil, err
		}
		if userOverride != "" {
			userID = userOverride
		}
		if err := core.ValidateDate(date); err != nil {
			slog.Warn("Skipping entry with invalid date", "user_id", userID, "date", date)
			skipped++
			continue
		}
		if err := core.ValidateHour(hour); err != nil {
			slog.Warn("Skipping entry with invalid hour", "user_id", userID, "date", date, "hour", hour)
			skipped++
			continue
		}

		k := dayKey{userID: userID, date: date}
		days[k] = append(days[k], core.HourText{Hour: hour, Text: text})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if skipped > 0 {
		slog.Warn("Some source entries were skipped", "count", skipped)
	}
	return days, nil
}
