// internal/model/campaign_recipient.go
package model

import "time"

type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "PENDING"
	RecipientQueued    RecipientStatus = "QUEUED"
	RecipientSent      RecipientStatus = "SENT"
	RecipientOpened    RecipientStatus = "OPENED"
	RecipientStarted   RecipientStatus = "STARTED"
	RecipientCompleted RecipientStatus = "COMPLETED"
	RecipientFailed    RecipientStatus = "FAILED"
)

// Deliverable reports whether a recipient is still waiting for its first
// successful send. Anything past QUEUED must never be re-processed.
func (s RecipientStatus) Deliverable() bool {
	return s == RecipientPending || s == RecipientQueued
}

type CampaignRecipient struct {
	ID           string          `db:"id" json:"id"`
	CampaignID   string          `db:"campaign_id" json:"campaign_id"`
	PhoneNumber  string          `db:"phone_number" json:"phone_number"`
	Variables    map[string]any  `db:"variables" json:"variables,omitempty"`
	MessageID    string          `db:"message_id" json:"message_id,omitempty"`
	Status       RecipientStatus `db:"status" json:"status"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	SentAt       *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	ErrorMessage string          `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}
