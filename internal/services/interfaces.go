package services

import (
	"context"

	"codeclaim/internal/models"
)

type LogWriter interface {
	CreateLog(ctx context.Context, eventID *string, action string, outcome string, message *string) error
}

type SheetStore interface {
	ReadSheet(ctx context.Context, path string) (SheetData, error)
	WriteSheet(ctx context.Context, path string, data SheetData) error
	EncodeSheet(ctx context.Context, data SheetData) ([]byte, error)
}

type ClaimJournaler interface {
	Record(ctx context.Context, entry *models.ClaimJournal) error
	FindByPhone(ctx context.Context, phone string) (*models.ClaimJournal, error)
	All(ctx context.Context) ([]models.ClaimJournal, error)
	Pending(ctx context.Context) ([]models.ClaimJournal, error)
	MarkFlushed(ctx context.Context, ids []string, target PersistenceTarget) error
}
