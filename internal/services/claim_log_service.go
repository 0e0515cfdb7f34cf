package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"codeclaim/internal/config"
	"codeclaim/internal/models"

	"go.uber.org/zap"
)

const originUnknown = "N/A"

// ClaimLogStore holds the append-only claim log and mirrors it to a
// workbook. Every append rewrites the whole workbook.
type ClaimLogStore struct {
	path    string
	sheets  SheetStore
	cfg     config.SheetConfig
	retry   RetryPolicy
	logger  *zap.Logger
	records []models.ClaimRecord
	loaded  bool
}

func NewClaimLogStore(path string, sheets SheetStore, cfg config.SheetConfig, retry RetryPolicy, logger *zap.Logger) (*ClaimLogStore, error) {
	if path == "" {
		return nil, errors.New("claim log path is empty")
	}
	if sheets == nil {
		return nil, errors.New("sheet store is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	return &ClaimLogStore{
		path:   path,
		sheets: sheets,
		cfg:    cfg,
		retry:  retry,
		logger: logger,
	}, nil
}

// Load replaces the in-memory log with the workbook's content. A missing
// workbook starts an empty log and reports created=true.
func (s *ClaimLogStore) Load(ctx context.Context) (count int, created bool, err error) {
	if s == nil {
		return 0, false, errors.New("claim log store is nil")
	}

	data, err := s.sheets.ReadSheet(ctx, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.records = nil
			s.loaded = true
			return 0, true, nil
		}
		return 0, false, fmt.Errorf("read claim log: %w", err)
	}

	header := data.Header()
	phoneCol := columnIndex(header, s.cfg.PhoneColumns)
	codeCol := columnIndex(header, s.cfg.CodeColumns)
	if len(header) > 0 && (phoneCol == -1 || codeCol == -1) {
		var missing []string
		if phoneCol == -1 {
			missing = append(missing, s.cfg.PhoneColumns[0])
		}
		if codeCol == -1 {
			missing = append(missing, s.cfg.CodeColumns[0])
		}
		return 0, false, &SchemaError{Missing: missing}
	}
	claimedAtCol := columnIndex(header, s.cfg.ClaimedAtColumns)
	ipCol := columnIndex(header, s.cfg.IPColumns)
	agentCol := columnIndex(header, s.cfg.UserAgentColumns)

	records := make([]models.ClaimRecord, 0, len(data.Body()))
	for _, row := range data.Body() {
		record := models.ClaimRecord{
			Phone:     cellAt(row, phoneCol),
			Code:      cellAt(row, codeCol),
			IPAddress: cellAt(row, ipCol),
			UserAgent: cellAt(row, agentCol),
		}
		text := cellAt(row, claimedAtCol)
		if claimedAt, ok := parseClaimedAt(text, s.cfg.TimeLayout); ok {
			record.ClaimedAt = claimedAt
		} else {
			record.ClaimedAtText = text
		}
		records = append(records, record)
	}

	s.records = records
	s.loaded = true
	return len(records), false, nil
}

func (s *ClaimLogStore) Loaded() bool {
	return s != nil && s.loaded
}

// Append adds a record and persists the full log. When the write fails
// the record stays in memory and the next Flush retries it.
func (s *ClaimLogStore) Append(ctx context.Context, record models.ClaimRecord) error {
	if s == nil {
		return errors.New("claim log store is nil")
	}
	if record.Code == "" {
		return errors.New("code is empty")
	}

	s.add(record)
	return s.Flush(ctx)
}

func (s *ClaimLogStore) add(record models.ClaimRecord) {
	if record.IPAddress == "" {
		record.IPAddress = originUnknown
	}
	if record.UserAgent == "" {
		record.UserAgent = originUnknown
	}
	s.records = append(s.records, record)
	s.loaded = true
}

func (s *ClaimLogStore) Flush(ctx context.Context) error {
	if s == nil {
		return errors.New("claim log store is nil")
	}

	sheet := s.sheet()
	err := retryWrite(ctx, s.retry, func() error {
		return s.sheets.WriteSheet(ctx, s.path, sheet)
	})
	if err != nil {
		s.logger.Error("claim log flush failed", zap.String("path", s.path), zap.Int("records", len(s.records)), zap.Error(err))
		return &PersistenceError{Target: TargetClaimLog, Err: err}
	}
	return nil
}

// Export encodes the current log as xlsx bytes. It returns nil for an
// empty log.
func (s *ClaimLogStore) Export(ctx context.Context) ([]byte, error) {
	if s == nil {
		return nil, errors.New("claim log store is nil")
	}
	if len(s.records) == 0 {
		return nil, nil
	}

	content, err := s.sheets.EncodeSheet(ctx, s.sheet())
	if err != nil {
		return nil, fmt.Errorf("export claim log: %w", err)
	}
	return content, nil
}

func (s *ClaimLogStore) Count() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Recent returns up to n of the newest records, oldest first.
func (s *ClaimLogStore) Recent(n int) []models.ClaimRecord {
	if s == nil || n <= 0 {
		return nil
	}
	start := len(s.records) - n
	if start < 0 {
		start = 0
	}
	return append([]models.ClaimRecord(nil), s.records[start:]...)
}

// Contains reports whether a record for code was submitted for the given
// normalized phone.
func (s *ClaimLogStore) Contains(phone string, code string) bool {
	if s == nil {
		return false
	}
	for _, record := range s.records {
		if record.Code != code {
			continue
		}
		if normalized, ok := NormalizePhone(record.Phone); ok && normalized == phone {
			return true
		}
	}
	return false
}

func (s *ClaimLogStore) sheet() SheetData {
	header := []string{
		s.cfg.PhoneColumns[0],
		s.cfg.CodeColumns[0],
		s.cfg.ClaimedAtColumns[0],
		s.cfg.IPColumns[0],
		s.cfg.UserAgentColumns[0],
	}
	rows := make([][]string, 0, len(s.records)+1)
	rows = append(rows, header)
	for _, record := range s.records {
		claimedAt := strings.TrimSpace(record.ClaimedAtText)
		if !record.ClaimedAt.IsZero() {
			claimedAt = record.ClaimedAt.Format(s.cfg.TimeLayout)
		}
		rows = append(rows, []string{record.Phone, record.Code, claimedAt, record.IPAddress, record.UserAgent})
	}
	return SheetData{Name: s.cfg.ClaimLogSheet, Rows: rows}
}
