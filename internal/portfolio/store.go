// Package portfolio reads and writes the holdings CSV.
package portfolio

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockbuddy/advisor/internal/common"
	"github.com/stockbuddy/advisor/internal/models"
)

// csvHeader is the contract: columns must appear in this order with this
// exact casing. Extra trailing columns are ignored.
var csvHeader = []string{"Symbol", "Quantity", "Average Cost", "Notes", "Last Updated"}

// lastUpdatedLayouts are tried in order; none matching leaves a zero time.
var lastUpdatedLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// Store is the CSV-backed portfolio store. Every Load is a fresh read so
// edits between analysis cycles are always picked up.
type Store struct {
	path   string
	logger *common.Logger
}

// NewStore creates a portfolio store for the given CSV path.
func NewStore(path string, logger *common.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load parses the CSV. Rows with malformed numeric fields are rejected
// with a ValidationError naming the line and field, never coerced to
// zero; the remaining rows still load. Duplicate symbols keep the last
// row's values.
func (s *Store) Load(ctx context.Context) ([]models.Holding, []models.ValidationError, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open portfolio CSV %s: %w", s.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read portfolio CSV header: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return nil, nil, err
	}

	var (
		holdings []models.Holding
		rowErrs  []models.ValidationError
		position = make(map[string]int)
	)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			rowErrs = append(rowErrs, models.ValidationError{
				Line:    line,
				Message: fmt.Sprintf("unreadable row: %v", err),
			})
			continue
		}

		line, _ := reader.FieldPos(0)

		if isBlankRow(record) {
			continue
		}
		if len(record) < len(csvHeader) {
			rowErrs = append(rowErrs, models.ValidationError{
				Line:    line,
				Message: fmt.Sprintf("row has %d fields, want %d", len(record), len(csvHeader)),
			})
			continue
		}

		symbol := strings.ToUpper(strings.TrimSpace(record[0]))
		if symbol == "" {
			rowErrs = append(rowErrs, models.ValidationError{
				Line:    line,
				Field:   "Symbol",
				Message: "empty symbol",
			})
			continue
		}

		quantity, err := parseAmount(record[1])
		if err != nil {
			rowErrs = append(rowErrs, models.ValidationError{
				Line:    line,
				Field:   "Quantity",
				Message: err.Error(),
			})
			continue
		}
		avgCost, err := parseAmount(record[2])
		if err != nil {
			rowErrs = append(rowErrs, models.ValidationError{
				Line:    line,
				Field:   "Average Cost",
				Message: err.Error(),
			})
			continue
		}

		holding := models.Holding{
			Symbol:      symbol,
			Quantity:    quantity,
			AvgCost:     avgCost,
			Notes:       strings.TrimSpace(record[3]),
			LastUpdated: parseLastUpdated(record[4]),
		}

		if idx, seen := position[symbol]; seen {
			s.logger.Warn().
				Str("symbol", symbol).
				Int("line", line).
				Msg("Duplicate symbol in portfolio CSV, last row wins")
			holdings[idx] = holding
		} else {
			position[symbol] = len(holdings)
			holdings = append(holdings, holding)
		}
	}

	s.logger.Debug().
		Str("path", s.path).
		Int("holdings", len(holdings)).
		Int("rejected_rows", len(rowErrs)).
		Msg("Portfolio CSV loaded")

	return holdings, rowErrs, nil
}

// Save writes holdings back in canonical column order. The write is
// atomic: temp file in the same directory, then rename.
func (s *Store) Save(ctx context.Context, holdings []models.Holding) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create portfolio directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	writer := csv.NewWriter(tmpFile)
	if err := writer.Write(csvHeader); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, h := range holdings {
		lastUpdated := ""
		if !h.LastUpdated.IsZero() {
			lastUpdated = h.LastUpdated.Format(time.RFC3339)
		}
		row := []string{h.Symbol, h.Quantity.String(), h.AvgCost.String(), h.Notes, lastUpdated}
		if err := writer.Write(row); err != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to write CSV row for %s: %w", h.Symbol, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	s.logger.Info().
		Str("path", s.path).
		Int("holdings", len(holdings)).
		Msg("Portfolio CSV saved")

	return nil
}

// validateHeader checks the required columns byte-for-byte, in order.
func validateHeader(header []string) error {
	if len(header) < len(csvHeader) {
		return fmt.Errorf("portfolio CSV header has %d columns, want %d (%s)",
			len(header), len(csvHeader), strings.Join(csvHeader, ", "))
	}
	for i, want := range csvHeader {
		got := strings.TrimSpace(header[i])
		if got != want {
			return fmt.Errorf("portfolio CSV header mismatch at column %d: got %q, want %q", i+1, got, want)
		}
	}
	return nil
}

// parseAmount parses a money/quantity field. Values must be plain
// decimals: anything unparseable or negative rejects the row.
func parseAmount(v string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return decimal.Decimal{}, fmt.Errorf("empty value")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("not a number: %q", trimmed)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("negative value: %q", trimmed)
	}
	return d, nil
}

// parseLastUpdated tolerates unparseable timestamps: the row still
// loads, just without a last-updated time.
func parseLastUpdated(v string) time.Time {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return time.Time{}
	}
	for _, layout := range lastUpdatedLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t
		}
	}
	return time.Time{}
}

// isBlankRow reports whether every field is empty after trimming.
func isBlankRow(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
