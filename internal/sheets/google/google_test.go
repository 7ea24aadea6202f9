package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"kidcash/internal/core"
	"kidcash/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// fakeSheets emulates the handful of Sheets endpoints the client uses.
type fakeSheets struct {
	mu       sync.Mutex
	titles   []string
	rows     map[string][][]any
	requests []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	f.requests = append(f.requests, r.Method+" "+path)
	w.Header().Set("Content-Type", "application/json")
	body, _ := io.ReadAll(r.Body)

	switch {
	case r.Method == http.MethodGet && !strings.Contains(path, "/values/"):
		sheetsJSON := make([]map[string]any, 0, len(f.titles))
		for _, t := range f.titles {
			sheetsJSON = append(sheetsJSON, map[string]any{"properties": map[string]any{"title": t}})
		}
		json.NewEncoder(w).Encode(map[string]any{"sheets": sheetsJSON})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req gsheet.BatchUpdateSpreadsheetRequest
		json.Unmarshal(body, &req)
		for _, rq := range req.Requests {
			if rq.AddSheet != nil {
				f.titles = append(f.titles, rq.AddSheet.Properties.Title)
			}
		}
		json.NewEncoder(w).Encode(map[string]any{})

	case r.Method == http.MethodPut:
		sheet := sheetOf(path)
		var vr gsheet.ValueRange
		json.Unmarshal(body, &vr)
		f.rows[sheet] = append(vr.Values, f.rows[sheet]...)
		json.NewEncoder(w).Encode(map[string]any{})

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		sheet := sheetOf(path)
		var vr gsheet.ValueRange
		json.Unmarshal(body, &vr)
		f.rows[sheet] = append(f.rows[sheet], vr.Values...)
		n := len(f.rows[sheet])
		json.NewEncoder(w).Encode(map[string]any{
			"updates": map[string]any{"updatedRange": "'" + sheet + "'!A" + strconv.Itoa(n) + ":G" + strconv.Itoa(n)},
		})

	case r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(map[string]any{"values": f.rows[sheetOf(path)]})

	default:
		http.Error(w, "unexpected request", http.StatusNotImplemented)
	}
}

func sheetOf(path string) string {
	_, rest, _ := strings.Cut(path, "/values/")
	rest = strings.TrimPrefix(rest, "'")
	name, _, _ := strings.Cut(rest, "'")
	return name
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return NewWithService(svc, "sheet-1", "Ledger")
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	_, err := New(context.Background(), Config{SpreadsheetID: "sheet-1"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClient_AppendCreatesYearSheet(t *testing.T) {
	fake := &fakeSheets{titles: []string{"2024 Ledger"}, rows: map[string][][]any{}}
	c := newTestClient(t, fake)
	ctx := context.Background()

	tx := core.Transaction{
		ID:          "trans_01",
		UserID:      "2",
		Amount:      core.Money{Cents: 1250},
		Type:        core.Expense,
		Category:    core.CategorySavings,
		Description: "Added to Bike savings goal",
		Date:        time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC),
	}
	ref, err := c.Append(ctx, sheets.LedgerEntry{Transaction: tx, UserName: "Emma Johnson"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ref != "'2025 Ledger'!A2:G2" {
		t.Errorf("ref = %q", ref)
	}

	rows, err := c.ListLedger(ctx, 2025)
	if err != nil {
		t.Fatalf("ListLedger: %v", err)
	}
	if len(rows) != 1 || rows[0].TransactionID != "trans_01" || rows[0].Amount.Cents != -1250 {
		t.Fatalf("rows = %+v", rows)
	}

	// Second append reuses the known sheet without another lookup.
	tx.ID = "trans_02"
	if _, err := c.Append(ctx, sheets.LedgerEntry{Transaction: tx}); err != nil {
		t.Fatalf("second Append: %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	lookups := 0
	for _, r := range fake.requests {
		if r == "GET /v4/spreadsheets/sheet-1" {
			lookups++
		}
	}
	if lookups != 1 {
		t.Errorf("spreadsheet looked up %d times, want 1: %v", lookups, fake.requests)
	}
}

func TestClient_AppendRequiresService(t *testing.T) {
	c := &Client{spreadsheetID: "test", known: map[string]bool{}}
	if _, err := c.Append(context.Background(), sheets.LedgerEntry{Transaction: core.Transaction{ID: "x"}}); err == nil {
		t.Fatal("expected error without service")
	}
}
