package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codeclaim/internal/models"

	"gorm.io/gorm"
)

// LogQuery filters the event log. Empty fields do not filter.
type LogQuery struct {
	Limit   int
	EventID string
	Action  string
	Outcome string
}

// LogService is the audit trail operators read through /admin/logs: loads,
// claims, flushes, replays and failed admin logins. Phones in messages are
// masked by the callers.
type LogService struct {
	db *gorm.DB
}

func NewLogService(db *gorm.DB) (*LogService, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}

	return &LogService{db: db}, nil
}

func (s *LogService) CreateLog(ctx context.Context, eventID *string, action string, outcome string, message *string) error {
	if s == nil {
		return errors.New("log service is nil")
	}
	if s.db == nil {
		return errors.New("db is nil")
	}
	if action == "" {
		return errors.New("action is empty")
	}
	if outcome == "" {
		return errors.New("outcome is empty")
	}

	entry := models.Log{
		EventID:  eventID,
		Datetime: time.Now().UTC(),
		Action:   action,
		Outcome:  outcome,
		Message:  message,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("create log: %w", err)
	}

	return nil
}

// GetLogs returns the newest entries first. Action and outcome filters are
// case-insensitive since the stored values are upper case.
func (s *LogService) GetLogs(ctx context.Context, q LogQuery) ([]models.Log, error) {
	if s == nil {
		return nil, errors.New("log service is nil")
	}
	if s.db == nil {
		return nil, errors.New("db is nil")
	}
	if q.Limit <= 0 {
		return nil, errors.New("limit must be positive")
	}

	query := s.db.WithContext(ctx).Order("datetime desc").Limit(q.Limit)
	if q.EventID != "" {
		query = query.Where("event_id = ?", q.EventID)
	}
	if action := strings.ToUpper(strings.TrimSpace(q.Action)); action != "" {
		query = query.Where("action = ?", action)
	}
	if outcome := strings.ToUpper(strings.TrimSpace(q.Outcome)); outcome != "" {
		query = query.Where("outcome = ?", outcome)
	}

	var logs []models.Log
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("get logs: %w", err)
	}

	return logs, nil
}

// TruncateLogs deletes every entry and reports how many were removed. The
// claim journal is a separate table and is never touched here.
func (s *LogService) TruncateLogs(ctx context.Context) (int, error) {
	if s == nil {
		return 0, errors.New("log service is nil")
	}
	if s.db == nil {
		return 0, errors.New("db is nil")
	}

	result := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Log{})
	if result.Error != nil {
		return 0, fmt.Errorf("truncate logs: %w", result.Error)
	}

	return int(result.RowsAffected), nil
}

// logEvent writes to the event log without failing the caller; the event
// log is an audit aid, not part of the claim's durability.
func logEvent(ctx context.Context, writer LogWriter, eventID *string, action string, outcome string, message string) {
	if writer == nil {
		return
	}
	_ = writer.CreateLog(ctx, eventID, action, outcome, &message)
}
