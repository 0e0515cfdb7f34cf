package services

import (
	"context"
	"errors"
	"fmt"

	"codeclaim/internal/models"

	"gorm.io/gorm"
)

// JournalService stores the write-ahead claim journal. The unique index on
// the normalized phone is the last line of defence against issuing twice.
type JournalService struct {
	db *gorm.DB
}

func NewJournalService(db *gorm.DB) (*JournalService, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}

	return &JournalService{db: db}, nil
}

func (s *JournalService) Record(ctx context.Context, entry *models.ClaimJournal) error {
	if s == nil {
		return errors.New("journal service is nil")
	}
	if s.db == nil {
		return errors.New("db is nil")
	}
	if entry == nil {
		return errors.New("journal entry is nil")
	}
	if entry.Phone == "" {
		return errors.New("phone is empty")
	}
	if entry.Code == "" {
		return errors.New("code is empty")
	}

	existing, err := s.FindByPhone(ctx, entry.Phone)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrJournalConflict
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrJournalConflict
		}
		return fmt.Errorf("record claim: %w", err)
	}

	return nil
}

// FindByPhone returns the journal entry for a normalized phone, or nil.
func (s *JournalService) FindByPhone(ctx context.Context, phone string) (*models.ClaimJournal, error) {
	if s == nil {
		return nil, errors.New("journal service is nil")
	}
	if s.db == nil {
		return nil, errors.New("db is nil")
	}

	var entries []models.ClaimJournal
	if err := s.db.WithContext(ctx).Where("phone = ?", phone).Limit(1).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("find claim: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	localize(entries)
	return &entries[0], nil
}

func (s *JournalService) All(ctx context.Context) ([]models.ClaimJournal, error) {
	if s == nil {
		return nil, errors.New("journal service is nil")
	}
	if s.db == nil {
		return nil, errors.New("db is nil")
	}

	var entries []models.ClaimJournal
	if err := s.db.WithContext(ctx).Order("claimed_at, id").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}

	localize(entries)
	return entries, nil
}

// Pending lists entries not yet written to both workbooks, oldest first.
func (s *JournalService) Pending(ctx context.Context) ([]models.ClaimJournal, error) {
	if s == nil {
		return nil, errors.New("journal service is nil")
	}
	if s.db == nil {
		return nil, errors.New("db is nil")
	}

	var entries []models.ClaimJournal
	err := s.db.WithContext(ctx).
		Where("eligibility_flushed = ? OR claim_log_flushed = ?", false, false).
		Order("claimed_at, id").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list pending claims: %w", err)
	}

	localize(entries)
	return entries, nil
}

func (s *JournalService) MarkFlushed(ctx context.Context, ids []string, target PersistenceTarget) error {
	if s == nil {
		return errors.New("journal service is nil")
	}
	if s.db == nil {
		return errors.New("db is nil")
	}
	if len(ids) == 0 {
		return nil
	}

	var column string
	switch target {
	case TargetEligibility:
		column = "eligibility_flushed"
	case TargetClaimLog:
		column = "claim_log_flushed"
	default:
		return fmt.Errorf("unsupported flush target %q", target)
	}

	err := s.db.WithContext(ctx).Model(&models.ClaimJournal{}).Where("id IN ?", ids).Update(column, true).Error
	if err != nil {
		return fmt.Errorf("mark %s flushed: %w", target, err)
	}

	return nil
}

// localize converts claim times read back from the database to local time,
// the zone workbook cells are written in.
func localize(entries []models.ClaimJournal) {
	for i := range entries {
		entries[i].ClaimedAt = entries[i].ClaimedAt.Local()
	}
}
