package export

import (
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/store"
)

const testWallet = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"

func TestBatchExportCSV(t *testing.T) {
	logger := zap.NewNop()
	exporter := NewBatchExporter(logger)
	tempDir := t.TempDir()

	records := generateTestRecords()

	options := ExportOptions{
		Format:    FormatCSV,
		OutputDir: tempDir,
	}

	outputPath, err := exporter.ExportBatches(testWallet, records, options)
	if err != nil {
		t.Fatalf("Failed to export batches: %v", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		t.Fatalf("Failed to stat file: %v", err)
	}
	if info.Size() == 0 {
		t.Error("Export file is empty")
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read export file: %v", err)
	}
	if !strings.HasPrefix(string(content), "signature,timestamp,clicks,status,explorer_url") {
		t.Error("CSV header missing")
	}

	t.Logf("Exported CSV to: %s (size: %d bytes)", outputPath, info.Size())
}

func TestBatchExportJSON(t *testing.T) {
	logger := zap.NewNop()
	exporter := NewBatchExporter(logger)
	tempDir := t.TempDir()

	records := generateTestRecords()

	options := ExportOptions{
		Format:    FormatJSON,
		OutputDir: tempDir,
	}

	outputPath, err := exporter.ExportBatches(testWallet, records, options)
	if err != nil {
		t.Fatalf("Failed to export batches: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read export file: %v", err)
	}
	if len(content) == 0 {
		t.Error("Export file is empty")
	}
	if !strings.Contains(string(content), testWallet) {
		t.Error("Export should record the wallet address")
	}
}

func TestBatchExportFilters(t *testing.T) {
	logger := zap.NewNop()
	exporter := NewBatchExporter(logger)
	tempDir := t.TempDir()

	records := generateTestRecords()

	// Time filter
	options := ExportOptions{
		Format:    FormatCSV,
		StartTime: time.Now().Add(-30 * time.Minute),
		EndTime:   time.Now().Add(-10 * time.Minute),
		OutputDir: tempDir,
	}
	outputPath, err := exporter.ExportBatches(testWallet, records, options)
	if err != nil {
		t.Fatalf("Failed to export with time filter: %v", err)
	}
	t.Logf("Time filtered export: %s", outputPath)

	// Status filter
	options = ExportOptions{
		Format:       FormatCSV,
		StatusFilter: store.StatusConfirmed,
		OutputDir:    tempDir,
	}
	outputPath, err = exporter.ExportBatches(testWallet, records, options)
	if err != nil {
		t.Fatalf("Failed to export with status filter: %v", err)
	}
	t.Logf("Status filtered export: %s", outputPath)

	// No matches
	options = ExportOptions{
		Format:       FormatCSV,
		StatusFilter: "nonsense",
		OutputDir:    tempDir,
	}
	if _, err := exporter.ExportBatches(testWallet, records, options); err == nil {
		t.Error("Expected an error when nothing matches")
	}
}

func TestExportSummaryCalculation(t *testing.T) {
	logger := zap.NewNop()
	exporter := NewBatchExporter(logger)

	now := time.Now()
	records := []store.TransactionRecord{
		{Signature: "a", Clicks: 100, Status: store.StatusConfirmed, Timestamp: now.Add(-2 * time.Hour)},
		{Signature: "b", Clicks: 50, Status: store.StatusConfirmed, Timestamp: now.Add(-1 * time.Hour)},
		{Signature: "c", Clicks: 30, Status: store.StatusFailed, Timestamp: now.Add(-30 * time.Minute)},
		{Signature: "d", Clicks: 20, Status: store.StatusPending, Timestamp: now},
	}

	summary := exporter.calculateSummary(records)

	if summary.TotalBatches != 4 {
		t.Errorf("Expected 4 total batches, got %d", summary.TotalBatches)
	}
	if summary.ConfirmedBatches != 2 || summary.FailedBatches != 1 || summary.PendingBatches != 1 {
		t.Errorf("Unexpected status counts: %+v", summary)
	}
	if summary.TotalClicks != 200 {
		t.Errorf("Expected 200 total clicks, got %d", summary.TotalClicks)
	}
	if summary.ConfirmedClicks != 150 {
		t.Errorf("Expected 150 confirmed clicks, got %d", summary.ConfirmedClicks)
	}
	if summary.SuccessRate != 50.0 {
		t.Errorf("Expected 50%% success rate, got %.1f%%", summary.SuccessRate)
	}
	if summary.AvgBatchSize != 50.0 {
		t.Errorf("Expected average batch size 50, got %.1f", summary.AvgBatchSize)
	}

	t.Logf("Export summary: %+v", summary)
}

func TestFilenameGeneration(t *testing.T) {
	logger := zap.NewNop()
	exporter := NewBatchExporter(logger)

	tests := []struct {
		options  ExportOptions
		expected string
	}{
		{
			options:  ExportOptions{Format: FormatCSV},
			expected: "batches_all_7xKXtg2C",
		},
		{
			options:  ExportOptions{Format: FormatJSON, StatusFilter: store.StatusConfirmed},
			expected: "batches_confirmed_7xKXtg2C",
		},
		{
			options:  ExportOptions{Format: FormatCSV, StatusFilter: store.StatusFailed},
			expected: "batches_failed_7xKXtg2C",
		},
	}

	for _, tt := range tests {
		filename := exporter.generateFilename(testWallet, tt.options)
		if !strings.HasPrefix(filename, tt.expected) {
			t.Errorf("Expected filename to start with %s, got %s", tt.expected, filename)
		}

		expectedExt := "." + string(tt.options.Format)
		if !strings.HasSuffix(filename, expectedExt) {
			t.Errorf("Expected filename to end with %s, got %s", expectedExt, filename)
		}
	}
}

// Helper function to generate test records
func generateTestRecords() []store.TransactionRecord {
	now := time.Now()
	return []store.TransactionRecord{
		{
			Signature:   "sig1",
			Clicks:      120,
			Status:      store.StatusConfirmed,
			Timestamp:   now.Add(-1 * time.Hour),
			ExplorerURL: "https://explorer.solana.com/tx/sig1?cluster=mainnet-beta",
		},
		{
			Signature:   "sig2",
			Clicks:      80,
			Status:      store.StatusConfirmed,
			Timestamp:   now.Add(-45 * time.Minute),
			ExplorerURL: "https://explorer.solana.com/tx/sig2?cluster=mainnet-beta",
		},
		{
			Signature: "sig3",
			Clicks:    60,
			Status:    store.StatusFailed,
			Timestamp: now.Add(-20 * time.Minute),
		},
		{
			Signature: "sig4",
			Clicks:    40,
			Status:    store.StatusPending,
			Timestamp: now.Add(-5 * time.Minute),
		},
	}
}
