// Package google exports the ledger to a Google Sheets spreadsheet,
// one sheet per year ("2025 Ledger").
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"kidcash/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var ledgerHeader = []any{"Date", "Transaction", "User", "Type", "Category", "Description", "Amount"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// sheetBase is the sheet name without year, e.g. "Ledger".
	sheetBase string

	mu    sync.Mutex
	known map[string]bool
}

var _ sheets.Ledger = (*Client)(nil)

// Config selects the spreadsheet and the credentials. When both
// credential fields are empty, GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE and GOOGLE_APPLICATION_CREDENTIALS are tried.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

// NewWithService wraps an already configured service.
func NewWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = "Ledger"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetName,
		known:         make(map[string]bool),
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsJSON := strings.TrimSpace(cfg.CredentialsJSON)
	credentialsFile := strings.TrimSpace(cfg.CredentialsFile)
	if credentialsJSON == "" && credentialsFile == "" {
		credentialsJSON = strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	}
	if credentialsJSON == "" && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var data []byte
	switch {
	case credentialsJSON != "":
		data = []byte(credentialsJSON)
	case credentialsFile != "":
		b, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		data = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(data),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "credentials_size", len(data))
	return service, nil
}

func (c *Client) sheetName(year int) string {
	return yearPrefixedName(c.sheetBase, year)
}

// Append adds one row at the bottom of the transaction's year sheet,
// creating the sheet with a header row when it does not exist yet.
func (c *Client) Append(ctx context.Context, e sheets.LedgerEntry) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	tx := e.Transaction
	if tx.ID == "" {
		return "", errors.New("ledger entry without transaction id")
	}

	sheet := c.sheetName(tx.Date.UTC().Year())
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return "", err
	}

	row := []any{
		tx.Date.UTC().Format(dateLayout),
		tx.ID,
		e.UserName,
		string(tx.Type),
		string(tx.Category),
		tx.Description,
		tx.SignedAmount().Decimal(),
	}
	rng := fmt.Sprintf("'%s'!A:G", sheet)
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{row}}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// ensureSheet creates the sheet and its header unless it is already known.
func (c *Client) ensureSheet(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.known[name] {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil {
			c.known[s.Properties.Title] = true
		}
	}
	if c.known[name] {
		return nil
	}

	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: name}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add sheet %s: %w", name, err)
	}

	header := &gsheet.ValueRange{Values: [][]any{ledgerHeader}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, fmt.Sprintf("'%s'!A1:G1", name), header).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header to %s: %w", name, err)
	}

	c.known[name] = true
	slog.InfoContext(ctx, "Created ledger sheet", "sheet", name)
	return nil
}

// ListLedger reads every row of the year's sheet. A missing sheet is an empty ledger.
func (c *Client) ListLedger(ctx context.Context, year int) ([]sheets.LedgerRow, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	sheet := c.sheetName(year)

	c.mu.Lock()
	_, checked := c.known[sheet]
	c.mu.Unlock()
	if !checked {
		if err := c.ensureSheet(ctx, sheet); err != nil {
			return nil, err
		}
	}

	rng := fmt.Sprintf("'%s'!A:G", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseLedgerRows(resp.Values), nil
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
