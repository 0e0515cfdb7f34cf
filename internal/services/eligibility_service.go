package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"codeclaim/internal/config"
	"codeclaim/internal/models"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// EligibilityLoader reads the eligibility workbook into an EligibilityTable.
type EligibilityLoader struct {
	path   string
	sheets SheetStore
	cfg    config.SheetConfig
	retry  RetryPolicy
	logger *zap.Logger
}

func NewEligibilityLoader(path string, sheets SheetStore, cfg config.SheetConfig, retry RetryPolicy, logger *zap.Logger) (*EligibilityLoader, error) {
	if path == "" {
		return nil, errors.New("eligibility path is empty")
	}
	if sheets == nil {
		return nil, errors.New("sheet store is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	return &EligibilityLoader{
		path:   path,
		sheets: sheets,
		cfg:    cfg,
		retry:  retry,
		logger: logger,
	}, nil
}

func (l *EligibilityLoader) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Load reads the workbook and builds the table. Phones are normalized,
// codes trimmed and repaired, rows repeating a (code, phone) pair dropped,
// and a blank or missing status becomes unissued.
func (l *EligibilityLoader) Load(ctx context.Context) (*EligibilityTable, error) {
	if l == nil {
		return nil, errors.New("eligibility loader is nil")
	}

	data, err := l.sheets.ReadSheet(ctx, l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingSourceError{Path: l.path}
		}
		return nil, fmt.Errorf("read eligibility: %w", err)
	}

	header := append([]string(nil), data.Header()...)
	phoneCol := columnIndex(header, l.cfg.PhoneColumns)
	codeCol := columnIndex(header, l.cfg.CodeColumns)
	var missing []string
	if phoneCol == -1 {
		missing = append(missing, l.cfg.PhoneColumns[len(l.cfg.PhoneColumns)-1])
	}
	if codeCol == -1 {
		missing = append(missing, l.cfg.CodeColumns[len(l.cfg.CodeColumns)-1])
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	statusCol := columnIndex(header, l.cfg.StatusColumns)
	if statusCol == -1 {
		header = append(header, l.cfg.StatusColumns[0])
		statusCol = len(header) - 1
	}
	claimedAtCol := columnIndex(header, l.cfg.ClaimedAtColumns)
	if claimedAtCol == -1 {
		header = append(header, l.cfg.ClaimedAtColumns[0])
		claimedAtCol = len(header) - 1
	}

	sheetName := data.Name
	if sheetName == "" {
		sheetName = l.cfg.EligibilitySheet
	}

	table := &EligibilityTable{
		path:         l.path,
		sheetName:    sheetName,
		sheets:       l.sheets,
		retry:        l.retry,
		layout:       l.cfg.TimeLayout,
		header:       header,
		phoneCol:     phoneCol,
		codeCol:      codeCol,
		statusCol:    statusCol,
		claimedAtCol: claimedAtCol,
		byPhone:      make(map[string]int),
	}

	body := data.Body()
	table.labels = detectStatusLabels(body, statusCol, l.cfg.StatusLabels)

	seen := make(map[string]bool, len(body))
	repeated := make(map[string]int)
	for _, source := range body {
		row := make([]string, len(header))
		copy(row, source)

		rawPhone := cellAt(row, phoneCol)
		phone, _ := NormalizePhone(rawPhone)
		code := RepairCode(cellAt(row, codeCol))

		key := code + "\x00" + phone
		if seen[key] {
			table.dropped++
			continue
		}
		seen[key] = true

		rawStatus := cellAt(row, statusCol)
		if rawStatus == "" {
			rawStatus = table.labels[0]
		}
		status := parseStatus(rawStatus, l.cfg.StatusLabels)

		claimedAt, ok := parseClaimedAt(cellAt(row, claimedAtCol), l.cfg.TimeLayout)
		if ok && !claimedAt.IsZero() {
			row[claimedAtCol] = claimedAt.Format(l.cfg.TimeLayout)
		}

		row[codeCol] = code
		row[statusCol] = rawStatus

		record := models.EligibilityRecord{
			ID:        len(table.records),
			Phone:     phone,
			RawPhone:  rawPhone,
			Code:      code,
			Status:    status,
			RawStatus: rawStatus,
			ClaimedAt: claimedAt,
		}
		table.records = append(table.records, record)
		table.rows = append(table.rows, row)

		if phone == "" {
			continue
		}
		if _, exists := table.byPhone[phone]; exists {
			repeated[phone]++
			continue
		}
		table.byPhone[phone] = record.ID
	}

	for phone, extra := range repeated {
		l.logger.Warn("eligibility phone appears on several rows; only the first is claimable",
			zap.String("phone", maskPhone(phone)),
			zap.Int("unreachable_rows", extra),
		)
	}
	if table.dropped > 0 {
		l.logger.Info("dropped repeated eligibility rows", zap.Int("rows", table.dropped))
	}

	return table, nil
}

// EligibilityTable is the loaded eligibility list. It is not safe for
// concurrent use; AllocationService serializes access.
type EligibilityTable struct {
	path      string
	sheetName string
	sheets    SheetStore
	retry     RetryPolicy
	layout    string

	header       []string
	rows         [][]string
	phoneCol     int
	codeCol      int
	statusCol    int
	claimedAtCol int
	// labels holds the (unissued, issued) labels written back to the sheet.
	labels [2]string

	records []models.EligibilityRecord
	byPhone map[string]int
	dropped int
}

func (t *EligibilityTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.records)
}

// Dropped is the number of source rows removed as repeated (code, phone) pairs.
func (t *EligibilityTable) Dropped() int {
	if t == nil {
		return 0
	}
	return t.dropped
}

// Lookup returns the first record for a normalized phone.
func (t *EligibilityTable) Lookup(phone string) (models.EligibilityRecord, bool) {
	if t == nil || phone == "" {
		return models.EligibilityRecord{}, false
	}
	id, ok := t.byPhone[phone]
	if !ok {
		return models.EligibilityRecord{}, false
	}
	return t.records[id], true
}

// MarkIssued moves an unissued record to issued, storing the code actually
// handed out and the claim time.
func (t *EligibilityTable) MarkIssued(id int, code string, at time.Time) error {
	if t == nil {
		return errors.New("eligibility table is nil")
	}
	if id < 0 || id >= len(t.records) {
		return fmt.Errorf("record %d out of range", id)
	}

	record := &t.records[id]
	switch record.Status {
	case models.StatusIssued:
		return ErrAlreadyClaimed
	case models.StatusUnissued:
	default:
		return ErrInvalidRecordState
	}

	record.Status = models.StatusIssued
	record.RawStatus = t.labels[1]
	record.Code = code
	record.ClaimedAt = at

	row := t.rows[id]
	row[t.statusCol] = t.labels[1]
	row[t.codeCol] = code
	row[t.claimedAtCol] = at.Format(t.layout)

	return nil
}

func (t *EligibilityTable) Counts() (total int, unissued int, issued int) {
	if t == nil {
		return 0, 0, 0
	}
	for _, record := range t.records {
		switch record.Status {
		case models.StatusUnissued:
			unissued++
		case models.StatusIssued:
			issued++
		}
	}
	return len(t.records), unissued, issued
}

// Sheet returns a copy of the table in workbook form, original columns first.
func (t *EligibilityTable) Sheet() SheetData {
	if t == nil {
		return SheetData{}
	}
	rows := make([][]string, 0, len(t.rows)+1)
	rows = append(rows, append([]string(nil), t.header...))
	for _, row := range t.rows {
		rows = append(rows, append([]string(nil), row...))
	}
	return SheetData{Name: t.sheetName, Rows: rows}
}

// Save rewrites the eligibility workbook, retrying per the table's policy.
func (t *EligibilityTable) Save(ctx context.Context) error {
	if t == nil {
		return errors.New("eligibility table is nil")
	}
	if t.sheets == nil {
		return errors.New("sheet store is nil")
	}

	sheet := t.Sheet()
	err := retryWrite(ctx, t.retry, func() error {
		return t.sheets.WriteSheet(ctx, t.path, sheet)
	})
	if err != nil {
		return &PersistenceError{Target: TargetEligibility, Err: err}
	}
	return nil
}

func parseStatus(raw string, labels [][2]string) models.ClaimStatus {
	raw = strings.TrimSpace(raw)
	for _, pair := range labels {
		if strings.EqualFold(raw, strings.TrimSpace(pair[0])) {
			return models.StatusUnissued
		}
		if strings.EqualFold(raw, strings.TrimSpace(pair[1])) {
			return models.StatusIssued
		}
	}
	return models.StatusInvalid
}

// detectStatusLabels picks the label pair already used by the sheet so
// write-backs stay in the source's vocabulary.
func detectStatusLabels(body [][]string, statusCol int, labels [][2]string) [2]string {
	for _, row := range body {
		cell := cellAt(row, statusCol)
		if cell == "" {
			continue
		}
		for _, pair := range labels {
			if strings.EqualFold(cell, strings.TrimSpace(pair[0])) || strings.EqualFold(cell, strings.TrimSpace(pair[1])) {
				return [2]string{strings.TrimSpace(pair[0]), strings.TrimSpace(pair[1])}
			}
		}
	}
	return [2]string{strings.TrimSpace(labels[0][0]), strings.TrimSpace(labels[0][1])}
}

// parseClaimedAt accepts the configured layout, RFC 3339 and Excel date
// serials. ok is false for text it cannot read; the cell is then kept as is.
func parseClaimedAt(value string, layout string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, true
	}

	for _, candidate := range []string{layout, time.RFC3339, "2006-01-02 15:04", "2006/01/02 15:04:05"} {
		if parsed, err := time.ParseInLocation(candidate, value, time.Local); err == nil {
			return parsed, true
		}
	}

	if serial, err := strconv.ParseFloat(value, 64); err == nil && serial > 0 {
		if parsed, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return parsed, true
		}
	}

	return time.Time{}, false
}

// Encode renders the table as xlsx bytes without touching the workbook file.
func (t *EligibilityTable) Encode(ctx context.Context) ([]byte, error) {
	if t == nil {
		return nil, errors.New("eligibility table is nil")
	}
	if t.sheets == nil {
		return nil, errors.New("sheet store is nil")
	}

	content, err := t.sheets.EncodeSheet(ctx, t.Sheet())
	if err != nil {
		return nil, fmt.Errorf("export eligibility: %w", err)
	}
	return content, nil
}
