package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/fields"
)

const (
	invoiceSheet   = "Invoices"
	ambiguitySheet = "Ambiguities"
)

// Service renders final records as XLSX workbooks or JSON.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// XLSX returns a workbook with one row per record on the Invoices sheet and
// one row per ambiguous field on the Ambiguities sheet. Columns follow the
// order of active.
func (s *Service) XLSX(records []entity.FinalRecord, active []fields.FieldDefinition) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", invoiceSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(ambiguitySheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(invoiceSheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{"Document", "Page Image"}
	for _, def := range active {
		headers = append(headers, def.Label)
	}
	headers = append(headers, "Ambiguous Fields")
	writeRow(f, invoiceSheet, 1, headers)

	ambRow := 2
	writeRow(f, ambiguitySheet, 1, []string{"Document", "Field", "Options", "Reason"})

	for i, r := range records {
		row := []string{r.DocumentID, r.Page.ImagePath}
		for _, def := range active {
			row = append(row, r.Fields[def.Name].String())
		}
		names := ambiguousNames(r)
		row = append(row, strings.Join(names, ", "))
		writeRow(f, invoiceSheet, i+2, row)

		for _, name := range names {
			e := r.Ambiguities[name]
			writeRow(f, ambiguitySheet, ambRow, []string{r.DocumentID, name, FormatOptions(e.Options), e.Reason})
			ambRow++
		}
	}

	_ = f.SetColWidth(invoiceSheet, "A", "A", 22) // document
	_ = f.SetColWidth(invoiceSheet, "B", "B", 48) // image path
	if len(active) > 0 {
		first, _ := excelize.ColumnNumberToName(3)
		last, _ := excelize.ColumnNumberToName(2 + len(active))
		_ = f.SetColWidth(invoiceSheet, first, last, 20)
	}
	_ = f.SetColWidth(ambiguitySheet, "A", "B", 22)
	_ = f.SetColWidth(ambiguitySheet, "C", "C", 60)
	_ = f.SetColWidth(ambiguitySheet, "D", "D", 48)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(records),
		"columns", len(headers),
		"ambiguities", ambRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// JSON writes records as an indented JSON array. A nil slice is written as [].
func (s *Service) JSON(w io.Writer, records []entity.FinalRecord) error {
	if records == nil {
		records = []entity.FinalRecord{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// FormatOptions renders options as "value (score)" joined by "; ".
func FormatOptions(opts []entity.Option) string {
	parts := make([]string, 0, len(opts))
	for _, o := range opts {
		if o.Score == nil {
			parts = append(parts, o.Value)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", o.Value, strconv.FormatFloat(*o.Score, 'f', -1, 64)))
	}
	return strings.Join(parts, "; ")
}

func ambiguousNames(r entity.FinalRecord) []string {
	names := make([]string, 0, len(r.Ambiguities))
	for k := range r.Ambiguities {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func writeRow(f *excelize.File, sheet string, row int, values []string) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}
