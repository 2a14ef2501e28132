package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/bigyan313/OBGC-V19/internal/store"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format       ExportFormat
	StartTime    time.Time
	EndTime      time.Time
	StatusFilter string // Filter by status (pending/confirmed/failed)
	OutputDir    string
}

// BatchExporter writes a wallet's submission history to disk
type BatchExporter struct {
	logger *zap.Logger
}

// NewBatchExporter creates a new batch exporter
func NewBatchExporter(logger *zap.Logger) *BatchExporter {
	return &BatchExporter{
		logger: logger,
	}
}

// ExportBatches exports transaction records based on the provided options
func (be *BatchExporter) ExportBatches(wallet string, records []store.TransactionRecord, options ExportOptions) (string, error) {
	filtered := be.filterRecords(records, options)

	if len(filtered) == 0 {
		return "", fmt.Errorf("no transactions match the export criteria")
	}

	// Oldest first for a chronological file
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	filename := be.generateFilename(wallet, options)
	outputPath := filepath.Join(options.OutputDir, filename)

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = be.exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = be.exportToJSON(wallet, filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}

	if err != nil {
		return "", err
	}

	be.logger.Info("Transactions exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))

	return outputPath, nil
}

// filterRecords applies filters to the transaction list
func (be *BatchExporter) filterRecords(records []store.TransactionRecord, options ExportOptions) []store.TransactionRecord {
	var filtered []store.TransactionRecord

	for _, rec := range records {
		if !options.StartTime.IsZero() && rec.Timestamp.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && rec.Timestamp.After(options.EndTime) {
			continue
		}
		if options.StatusFilter != "" && rec.Status != options.StatusFilter {
			continue
		}
		filtered = append(filtered, rec)
	}

	return filtered
}

// generateFilename creates a filename based on export options
func (be *BatchExporter) generateFilename(wallet string, options ExportOptions) string {
	timestamp := time.Now().Format("20060102_150405")

	prefix := "batches_all"
	if options.StatusFilter != "" {
		prefix = fmt.Sprintf("batches_%s", options.StatusFilter)
	}

	if len(wallet) >= 8 {
		prefix += "_" + wallet[:8]
	}

	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, options.Format)
}

func csvHeaders() []string {
	return []string{"signature", "timestamp", "clicks", "status", "explorer_url"}
}

func toCSV(rec store.TransactionRecord) []string {
	return []string{
		rec.Signature,
		rec.Timestamp.UTC().Format(time.RFC3339),
		strconv.FormatUint(rec.Clicks, 10),
		rec.Status,
		rec.ExplorerURL,
	}
}

// exportToCSV exports records to CSV format
func (be *BatchExporter) exportToCSV(records []store.TransactionRecord, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(csvHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, rec := range records {
		if err := writer.Write(toCSV(rec)); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	return nil
}

// exportToJSON exports records to JSON format with a summary block
func (be *BatchExporter) exportToJSON(wallet string, records []store.TransactionRecord, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime   time.Time                 `json:"export_time"`
		Wallet       string                    `json:"wallet"`
		RecordCount  int                       `json:"record_count"`
		Transactions []store.TransactionRecord `json:"transactions"`
		Summary      ExportSummary             `json:"summary"`
	}{
		ExportTime:   time.Now(),
		Wallet:       wallet,
		RecordCount:  len(records),
		Transactions: records,
		Summary:      be.calculateSummary(records),
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// calculateSummary calculates summary statistics for the export
func (be *BatchExporter) calculateSummary(records []store.TransactionRecord) ExportSummary {
	summary := ExportSummary{
		TotalBatches: len(records),
	}

	if len(records) == 0 {
		return summary
	}

	summary.StartDate = records[0].Timestamp
	summary.EndDate = records[len(records)-1].Timestamp

	for _, rec := range records {
		summary.TotalClicks += rec.Clicks

		switch rec.Status {
		case store.StatusConfirmed:
			summary.ConfirmedBatches++
			summary.ConfirmedClicks += rec.Clicks
		case store.StatusFailed:
			summary.FailedBatches++
		case store.StatusPending:
			summary.PendingBatches++
		}
	}

	if summary.TotalBatches > 0 {
		summary.SuccessRate = float64(summary.ConfirmedBatches) / float64(summary.TotalBatches) * 100
		summary.AvgBatchSize = float64(summary.TotalClicks) / float64(summary.TotalBatches)
	}

	return summary
}

// ExportSummary contains summary statistics for exported batches
type ExportSummary struct {
	TotalBatches     int       `json:"total_batches"`
	ConfirmedBatches int       `json:"confirmed_batches"`
	FailedBatches    int       `json:"failed_batches"`
	PendingBatches   int       `json:"pending_batches"`
	TotalClicks      uint64    `json:"total_clicks"`
	ConfirmedClicks  uint64    `json:"confirmed_clicks"`
	SuccessRate      float64   `json:"success_rate"`
	AvgBatchSize     float64   `json:"avg_batch_size"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
}
