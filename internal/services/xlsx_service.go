package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const defaultSheetName = "Sheet1"

// SheetData is one worksheet; Rows[0] is the header row.
type SheetData struct {
	Name string
	Rows [][]string
}

func (d SheetData) Header() []string {
	if len(d.Rows) == 0 {
		return nil
	}
	return d.Rows[0]
}

func (d SheetData) Body() [][]string {
	if len(d.Rows) < 2 {
		return nil
	}
	return d.Rows[1:]
}

type XlsxService struct{}

func NewXlsxService() (*XlsxService, error) {
	return &XlsxService{}, nil
}

// ReadSheet returns the first worksheet of the workbook at path with every
// row padded to the header width and blank rows dropped. A missing file is
// reported with an error wrapping fs.ErrNotExist.
func (s *XlsxService) ReadSheet(ctx context.Context, path string) (SheetData, error) {
	if s == nil {
		return SheetData{}, errors.New("xlsx service is nil")
	}
	if path == "" {
		return SheetData{}, errors.New("path is empty")
	}
	_ = ctx

	content, err := os.ReadFile(path)
	if err != nil {
		return SheetData{}, fmt.Errorf("read workbook: %w", err)
	}

	workbook, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return SheetData{}, fmt.Errorf("open workbook: %w", err)
	}

	data, readErr := readFirstSheet(workbook)
	if closeErr := workbook.Close(); closeErr != nil && readErr == nil {
		return SheetData{}, fmt.Errorf("close workbook: %w", closeErr)
	}
	if readErr != nil {
		return SheetData{}, readErr
	}

	return data, nil
}

// WriteSheet replaces the workbook at path. The new content is written to a
// temporary file in the same directory and renamed over the target.
func (s *XlsxService) WriteSheet(ctx context.Context, path string, data SheetData) error {
	if s == nil {
		return errors.New("xlsx service is nil")
	}
	if path == "" {
		return errors.New("path is empty")
	}

	content, err := s.EncodeSheet(ctx, data)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp workbook: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp workbook: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace workbook: %w", err)
	}

	return nil
}

// EncodeSheet renders data as xlsx bytes. Every cell is written as text so
// phone numbers and codes keep their leading digits.
func (s *XlsxService) EncodeSheet(ctx context.Context, data SheetData) ([]byte, error) {
	if s == nil {
		return nil, errors.New("xlsx service is nil")
	}
	_ = ctx

	name := strings.TrimSpace(data.Name)
	if name == "" {
		name = defaultSheetName
	}

	workbook := excelize.NewFile()
	buf, err := encodeWorkbook(workbook, name, data.Rows)
	closeErr := workbook.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close workbook: %w", closeErr)
	}

	return buf, nil
}

func encodeWorkbook(workbook *excelize.File, name string, rows [][]string) ([]byte, error) {
	if name != defaultSheetName {
		if err := workbook.SetSheetName(defaultSheetName, name); err != nil {
			return nil, fmt.Errorf("name sheet %s: %w", name, err)
		}
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, fmt.Errorf("cell name row %d: %w", i+1, err)
		}
		values := make([]interface{}, len(row))
		for j, value := range row {
			values[j] = value
		}
		if err := workbook.SetSheetRow(name, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	buf, err := workbook.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func readFirstSheet(workbook *excelize.File) (SheetData, error) {
	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return SheetData{}, errors.New("workbook has no sheets")
	}

	rows, err := workbook.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return SheetData{}, fmt.Errorf("get rows for %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return SheetData{Name: sheets[0]}, nil
	}

	header := rows[0]
	data := SheetData{Name: sheets[0], Rows: [][]string{header}}
	for _, row := range rows[1:] {
		normalized := normalizeRow(row, len(header))
		if rowIsEmpty(normalized) {
			continue
		}
		data.Rows = append(data.Rows, normalized)
	}

	return data, nil
}

func normalizeRow(row []string, length int) []string {
	if len(row) >= length {
		return row
	}
	normalized := make([]string, length)
	copy(normalized, row)
	return normalized
}

func rowIsEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// columnIndex returns the position of the first header cell matching any
// alias, ignoring case and surrounding space, or -1.
func columnIndex(header []string, aliases []string) int {
	for i, cell := range header {
		cell = strings.TrimSpace(cell)
		for _, alias := range aliases {
			if strings.EqualFold(cell, strings.TrimSpace(alias)) {
				return i
			}
		}
	}
	return -1
}

func cellAt(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}
