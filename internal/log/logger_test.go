package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"debug", false},
		{"INFO", false},
		{"", false},
		{"warning", false},
		{"error", false},
		{"trace", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestNewJSONIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Config{Level: "info", Format: "json", Component: ComponentFinance}, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()

	logger.Info("Transaction added", FieldTransactionID, "trans_1")
	logger.Debug("dropped below level")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec[FieldComponent] != ComponentFinance || rec[FieldTransactionID] != "trans_1" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kidcash.log")
	cfg := DefaultConfig()
	cfg.File = path

	var buf bytes.Buffer
	logger, closer, err := New(cfg, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.LogError(context.Background(), "Persist failed", errors.New("disk full"), OpPersist)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "disk full") || !strings.Contains(buf.String(), "disk full") {
		t.Errorf("record missing from file or stdout: file=%q stdout=%q", data, buf.String())
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, _, err := New(Config{Level: "loud"}, nil); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestWithLoggerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger, _, _ := New(Config{Level: "info", Format: "json"}, &buf)

	ctx := WithLogger(context.Background(), logger.With(FieldRequestID, "req_abc"))
	FromContext(ctx).InfoContext(ctx, "Handled")

	if !strings.Contains(buf.String(), `"request_id":"req_abc"`) {
		t.Errorf("request id missing: %q", buf.String())
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Errorf("unexpected fallback logger: %+v", l)
	}
}
