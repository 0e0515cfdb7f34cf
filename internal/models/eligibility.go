package models

import "time"

type ClaimStatus string

const (
	StatusUnissued ClaimStatus = "Unissued"
	StatusIssued   ClaimStatus = "Issued"
	// StatusInvalid marks a status cell holding an unrecognised label.
	StatusInvalid ClaimStatus = "Invalid"
)

// EligibilityRecord is one row of the eligibility workbook after load-time
// normalisation. ID is the row's position among the kept rows and is only
// stable for the lifetime of one loaded table.
type EligibilityRecord struct {
	ID        int         `json:"id"`
	Phone     string      `json:"phone,omitempty"`
	RawPhone  string      `json:"raw_phone"`
	Code      string      `json:"code"`
	Status    ClaimStatus `json:"status"`
	RawStatus string      `json:"raw_status"`
	ClaimedAt time.Time   `json:"claimed_at,omitempty"`
}
