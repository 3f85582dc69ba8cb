// Package google exports ledger rollups to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"bilancio/internal/core"
)

var monthNames = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// HistoryExporter writes one sheet per year holding every user's month rollups.
type HistoryExporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
}

// NewHistoryExporter authenticates with service account credentials from the
// environment. sheetBase defaults to "History"; the year is prefixed per export.
func NewHistoryExporter(ctx context.Context, spreadsheetID, sheetBase string) (*HistoryExporter, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = "History"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &HistoryExporter{svc: svc, spreadsheetID: spreadsheetID, sheetBase: sheetBase}, nil
}

// newSheetsService builds a Sheets client from GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := serviceAccountCredentials()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func serviceAccountCredentials() ([]byte, error) {
	if js := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); js != "" {
		return []byte(js), nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

// ExportYear replaces the year's sheet with rows. The sheet is created when missing.
func (e *HistoryExporter) ExportYear(ctx context.Context, year int, rows []core.MonthHistory) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(e.sheetBase, year)
	if err := e.ensureSheet(ctx, sheet); err != nil {
		return err
	}

	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, sheet+"!A:E", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %s: %w", sheet, err)
	}

	values := historyValues(rows)
	rng := fmt.Sprintf("%s!A1:E%d", sheet, len(values))
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "History exported to Google Sheets", "sheet", sheet, "rows", len(rows))
	return nil
}

func (e *HistoryExporter) ensureSheet(ctx context.Context, title string) error {
	ss, err := e.svc.Spreadsheets.Get(e.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	slog.InfoContext(ctx, "Created sheet", "title", title)
	return nil
}

// historyValues renders a header plus one row per (user, month), ordered by
// user then month.
func historyValues(rows []core.MonthHistory) [][]any {
	sorted := append([]core.MonthHistory(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].UserID != sorted[j].UserID {
			return sorted[i].UserID < sorted[j].UserID
		}
		return sorted[i].Month < sorted[j].Month
	})

	out := make([][]any, 0, len(sorted)+1)
	out = append(out, []any{"User", "Month", "Income", "Expense", "Balance"})
	for _, h := range sorted {
		name := strconv.Itoa(h.Month)
		if h.Month >= 0 && h.Month < len(monthNames) {
			name = monthNames[h.Month]
		}
		out = append(out, []any{
			h.UserID,
			name,
			h.Income.StringFixed(2),
			h.Expense.StringFixed(2),
			h.Income.Sub(h.Expense).StringFixed(2),
		})
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
