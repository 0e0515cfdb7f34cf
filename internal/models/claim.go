package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClaimRecord is one row of the claim log workbook. Records are never
// changed after they are appended.
type ClaimRecord struct {
	Phone     string    `json:"phone"`
	Code      string    `json:"code"`
	ClaimedAt time.Time `json:"claimed_at"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	// ClaimedAtText keeps a claimedAt cell that could not be parsed on load.
	ClaimedAtText string `json:"-"`
}

// ClaimJournal is the write-ahead entry for a claim. The row is inserted
// before any workbook is touched; the flushed flags are set once each
// workbook has been rewritten with the claim applied.
type ClaimJournal struct {
	ID                 string    `gorm:"type:uuid;primaryKey" json:"id"`
	Phone              string    `gorm:"type:text;not null;uniqueIndex" json:"phone"`
	SubmittedPhone     string    `gorm:"type:text;not null" json:"submitted_phone"`
	Code               string    `gorm:"type:text;not null" json:"code"`
	ClaimedAt          time.Time `gorm:"not null" json:"claimed_at"`
	IPAddress          string    `gorm:"type:text" json:"ip_address"`
	UserAgent          string    `gorm:"type:text" json:"user_agent"`
	EligibilityFlushed bool      `gorm:"not null;default:false" json:"eligibility_flushed"`
	ClaimLogFlushed    bool      `gorm:"not null;default:false" json:"claim_log_flushed"`
}

func (ClaimJournal) TableName() string {
	return "claim_journal"
}

func (j *ClaimJournal) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return nil
}

func (j ClaimJournal) Record() ClaimRecord {
	return ClaimRecord{
		Phone:     j.SubmittedPhone,
		Code:      j.Code,
		ClaimedAt: j.ClaimedAt,
		IPAddress: j.IPAddress,
		UserAgent: j.UserAgent,
	}
}
