// Package google mirrors journal days to a Google Sheets spreadsheet using a
// service account. One row per (user, date, hour), rewritten wholesale per
// day so replayed notifications stay idempotent.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"hourlog/internal/core"
	ports "hourlog/internal/sheets"

	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.BackupWriter = (*Client)(nil)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Optional: GOOGLE_SHEET_NAME (default "Journal").
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS for a service account; or an OAuth client
// (GOOGLE_OAUTH_CLIENT_JSON / GOOGLE_OAUTH_CLIENT_FILE) with a token file
// written by the oauth-init tool (GOOGLE_OAUTH_TOKEN_FILE).
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	sheetName := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if sheetName == "" {
		sheetName = "Journal"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	if svc, ok, err := newOAuthSheetsService(ctx); ok {
		return svc, err
	}

	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return service, nil
}

// newOAuthSheetsService builds a Sheets client from an OAuth client config
// plus a stored user token. Returns ok=false when no OAuth client is
// configured, so the caller falls through to service account credentials.
func newOAuthSheetsService(ctx context.Context) (*gsheet.Service, bool, error) {
	clientJSON := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"))
	clientFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"))
	if clientJSON == "" && clientFile == "" {
		return nil, false, nil
	}

	var b []byte
	var err error
	if clientJSON != "" {
		b = []byte(clientJSON)
	} else {
		b, err = os.ReadFile(clientFile)
		if err != nil {
			return nil, true, fmt.Errorf("read oauth client file: %w", err)
		}
	}

	cfg, err := oauthgoogle.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, true, fmt.Errorf("parse oauth client config: %w", err)
	}

	tokenFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE"))
	if tokenFile == "" {
		tokenFile = "token.json"
	}
	tokenBytes, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, true, fmt.Errorf("read oauth token file (run oauth-init first): %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenBytes, &token); err != nil {
		return nil, true, fmt.Errorf("parse oauth token: %w", err)
	}

	service, err := gsheet.NewService(ctx, goption.WithTokenSource(cfg.TokenSource(ctx, &token)))
	if err != nil {
		return nil, true, fmt.Errorf("create sheets service: %w", err)
	}
	return service, true, nil
}

// WriteDay replaces every backup row for (user, date) with the day's current
// entries: old rows are blanked, current hours appended in order.
func (c *Client) WriteDay(ctx context.Context, userID, date string, entries core.DayEntries) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	// Read the key columns to find rows belonging to this (user, date).
	rng := fmt.Sprintf("%s!A:B", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read backup sheet %s: %w", c.sheetName, err)
	}

	var stale []string
	for i, row := range resp.Values {
		if len(row) >= 2 && fmt.Sprint(row[0]) == userID && fmt.Sprint(row[1]) == date {
			stale = append(stale, fmt.Sprintf("%s!A%d:D%d", c.sheetName, i+1, i+1))
		}
	}
	if len(stale) > 0 {
		clear := &gsheet.BatchClearValuesRequest{Ranges: stale}
		if _, err := c.svc.Spreadsheets.Values.BatchClear(c.spreadsheetID, clear).Context(ctx).Do(); err != nil {
			return fmt.Errorf("clear stale backup rows: %w", err)
		}
	}

	if len(entries) == 0 {
		slog.InfoContext(ctx, "Backup day cleared",
			"user_id", userID,
			"date", date,
			"stale_rows", len(stale))
		return nil
	}

	hours := make([]int, 0, len(entries))
	for hour := range entries {
		hours = append(hours, hour)
	}
	sort.Ints(hours)

	values := make([][]any, 0, len(hours))
	for _, hour := range hours {
		values = append(values, []any{userID, date, fmt.Sprintf("%02d:00", hour), entries[hour]})
	}

	appendRange := fmt.Sprintf("%s!A:D", c.sheetName)
	vr := &gsheet.ValueRange{Values: values}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, appendRange, vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append backup rows: %w", err)
	}

	slog.InfoContext(ctx, "Backup day written",
		"user_id", userID,
		"date", date,
		"rows", len(values),
		"stale_rows", len(stale))
	return nil
}
