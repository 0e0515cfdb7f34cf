package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeclaim/internal/config"
	"codeclaim/internal/models"

	"github.com/xuri/excelize/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.AutoMigrate(&models.ClaimJournal{}, &models.Log{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return db
}

// writeWorkbook creates an xlsx file whose first sheet holds rows.
func writeWorkbook(t *testing.T, path string, rows [][]string) {
	t.Helper()

	workbook := excelize.NewFile()
	defer workbook.Close()
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := workbook.SetCellStr("Sheet1", cell, value); err != nil {
				t.Fatalf("set cell %s: %v", cell, err)
			}
		}
	}
	if err := workbook.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
}

func readWorkbook(t *testing.T, path string) [][]string {
	t.Helper()

	service, err := NewXlsxService()
	if err != nil {
		t.Fatalf("NewXlsxService: %v", err)
	}
	data, err := service.ReadSheet(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadSheet %s: %v", path, err)
	}
	return data.Rows
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

type loggedEntry struct {
	eventID *string
	action  string
	outcome string
	message *string
}

type stubLogWriter struct {
	mu      sync.Mutex
	entries []loggedEntry
}

func (s *stubLogWriter) CreateLog(ctx context.Context, eventID *string, action string, outcome string, message *string) error {
	var copied *string
	if message != nil {
		value := *message
		copied = &value
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, loggedEntry{
		eventID: eventID,
		action:  action,
		outcome: outcome,
		message: copied,
	})
	return nil
}

func (s *stubLogWriter) count(action string, outcome string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, entry := range s.entries {
		if entry.action == action && entry.outcome == outcome {
			n++
		}
	}
	return n
}

// flakySheetStore wraps a real store and fails writes to selected paths
// while failWrites is set.
type flakySheetStore struct {
	*XlsxService
	mu         sync.Mutex
	failWrites map[string]bool
	writes     map[string]int
}

func newFlakySheetStore() *flakySheetStore {
	return &flakySheetStore{
		XlsxService: &XlsxService{},
		failWrites:  make(map[string]bool),
		writes:      make(map[string]int),
	}
}

func (s *flakySheetStore) setFailing(path string, failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites[path] = failing
}

func (s *flakySheetStore) WriteSheet(ctx context.Context, path string, data SheetData) error {
	s.mu.Lock()
	s.writes[path]++
	failing := s.failWrites[path]
	s.mu.Unlock()

	if failing {
		return errors.New("disk full")
	}
	return s.XlsxService.WriteSheet(ctx, path, data)
}

type fixture struct {
	dir             string
	eligibilityPath string
	claimLogPath    string
	sheets          *flakySheetStore
	journal         *JournalService
	logs            *stubLogWriter
	service         *AllocationService
}

func newFixture(t *testing.T, rows [][]string) *fixture {
	t.Helper()

	dir := t.TempDir()
	f := &fixture{
		dir:             dir,
		eligibilityPath: filepath.Join(dir, "eligibility.xlsx"),
		claimLogPath:    filepath.Join(dir, "claims.xlsx"),
		sheets:          newFlakySheetStore(),
		logs:            &stubLogWriter{},
	}
	if rows != nil {
		writeWorkbook(t, f.eligibilityPath, rows)
	}

	journal, err := NewJournalService(openTestDB(t))
	if err != nil {
		t.Fatalf("NewJournalService: %v", err)
	}
	f.journal = journal
	f.service = f.newService(t)

	return f
}

// newService builds a fresh engine over the fixture's files and journal,
// as a restarted process would.
func (f *fixture) newService(t *testing.T) *AllocationService {
	t.Helper()

	cfg := config.DefaultSheetConfig()
	loader, err := NewEligibilityLoader(f.eligibilityPath, f.sheets, cfg, fastRetry(), nil)
	if err != nil {
		t.Fatalf("NewEligibilityLoader: %v", err)
	}
	claims, err := NewClaimLogStore(f.claimLogPath, f.sheets, cfg, fastRetry(), nil)
	if err != nil {
		t.Fatalf("NewClaimLogStore: %v", err)
	}
	service, err := NewAllocationService(loader, claims, f.journal, f.logs, nil)
	if err != nil {
		t.Fatalf("NewAllocationService: %v", err)
	}
	service.now = func() time.Time {
		return time.Date(2025, time.March, 1, 10, 30, 0, 0, time.Local)
	}
	return service
}
