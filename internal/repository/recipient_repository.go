package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/flowsend/campaign-worker/internal/model"
)

type RecipientRepositoryInterface interface {
	// InsertBatch persists one batch of recipients in a single multi-row
	// insert, assigning IDs. Batching bounds transaction size on large files.
	InsertBatch(recipients []*model.CampaignRecipient) error

	GetByID(id string) (*model.CampaignRecipient, error)
	FindByMessageID(messageID string) (*model.CampaignRecipient, error)

	// MarkSent flips the recipient to SENT and bumps the campaign's
	// sent_count in one transaction.
	MarkSent(recipientID, campaignID, messageID string, sentAt time.Time) error

	// MarkFailed flips the recipient to FAILED and bumps the campaign's
	// failed_count in one transaction.
	MarkFailed(recipientID, campaignID, errMsg string, retryCount int) error

	// RecordAttempt persists a failed attempt that will be retried.
	RecordAttempt(recipientID string, retryCount int, errMsg string) error

	UpdateStatus(recipientID string, from []model.RecipientStatus, to model.RecipientStatus) error

	CountInFlight(campaignID string) (int, error)
	GroupByStatus(campaignID string) (map[model.RecipientStatus]int, error)
}

type RecipientRepository struct {
	DB *sql.DB
}

const recipientColumns = `id, campaign_id, phone_number, variables, COALESCE(message_id, ''),
	   status, retry_count, sent_at, COALESCE(error_message, ''), created_at, updated_at`

func scanRecipient(row interface{ Scan(...any) error }) (*model.CampaignRecipient, error) {
	var (
		rec      model.CampaignRecipient
		varsJSON []byte
	)
	err := row.Scan(
		&rec.ID, &rec.CampaignID, &rec.PhoneNumber, &varsJSON, &rec.MessageID,
		&rec.Status, &rec.RetryCount, &rec.SentAt, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(varsJSON) > 0 {
		if err := json.Unmarshal(varsJSON, &rec.Variables); err != nil {
			return nil, fmt.Errorf("decode recipient variables: %w", err)
		}
	}
	return &rec, nil
}

func (r *RecipientRepository) InsertBatch(recipients []*model.CampaignRecipient) error {
	if len(recipients) == 0 {
		return nil
	}

	now := time.Now()
	placeholders := make([]string, 0, len(recipients))
	args := make([]any, 0, len(recipients)*7)

	for i, rec := range recipients {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.Status == "" {
			rec.Status = model.RecipientQueued
		}
		rec.CreatedAt = now
		rec.UpdatedAt = now

		varsJSON, err := json.Marshal(rec.Variables)
		if err != nil {
			return fmt.Errorf("encode recipient variables: %w", err)
		}

		base := i * 7
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args, rec.ID, rec.CampaignID, rec.PhoneNumber, varsJSON, rec.Status, now, now)
	}

	query := `
		INSERT INTO campaign_recipients (id, campaign_id, phone_number, variables, status, created_at, updated_at)
		VALUES ` + strings.Join(placeholders, ", ")

	_, err := r.DB.Exec(query, args...)
	return err
}

func (r *RecipientRepository) GetByID(id string) (*model.CampaignRecipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM campaign_recipients WHERE id=$1`
	rec, err := scanRecipient(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *RecipientRepository) FindByMessageID(messageID string) (*model.CampaignRecipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM campaign_recipients WHERE message_id=$1`
	rec, err := scanRecipient(r.DB.QueryRow(query, messageID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *RecipientRepository) MarkSent(recipientID, campaignID, messageID string, sentAt time.Time) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE campaign_recipients
		SET status=$1, message_id=$2, sent_at=$3, updated_at=NOW()
		WHERE id=$4
	`, model.RecipientSent, messageID, sentAt, recipientID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`UPDATE campaigns SET sent_count = sent_count + 1, updated_at=NOW() WHERE id=$1`, campaignID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *RecipientRepository) MarkFailed(recipientID, campaignID, errMsg string, retryCount int) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE campaign_recipients
		SET status=$1, retry_count=$2, error_message=$3, updated_at=NOW()
		WHERE id=$4
	`, model.RecipientFailed, retryCount, errMsg, recipientID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`UPDATE campaigns SET failed_count = failed_count + 1, updated_at=NOW() WHERE id=$1`, campaignID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *RecipientRepository) RecordAttempt(recipientID string, retryCount int, errMsg string) error {
	query := `UPDATE campaign_recipients SET retry_count=$1, error_message=$2, updated_at=NOW() WHERE id=$3`
	_, err := r.DB.Exec(query, retryCount, errMsg, recipientID)
	return err
}

// UpdateStatus moves a recipient to a new status only when its current
// status is in the allowed set, keeping the state machine forward-only.
func (r *RecipientRepository) UpdateStatus(recipientID string, from []model.RecipientStatus, to model.RecipientStatus) error {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}
	query := `UPDATE campaign_recipients SET status=$1, updated_at=NOW() WHERE id=$2 AND status = ANY($3)`
	_, err := r.DB.Exec(query, to, recipientID, pq.Array(fromStrs))
	return err
}

func (r *RecipientRepository) CountInFlight(campaignID string) (int, error) {
	query := `SELECT COUNT(*) FROM campaign_recipients WHERE campaign_id=$1 AND status = ANY($2)`
	var count int
	err := r.DB.QueryRow(query, campaignID, pq.Array([]string{
		string(model.RecipientPending), string(model.RecipientQueued),
	})).Scan(&count)
	return count, err
}

func (r *RecipientRepository) GroupByStatus(campaignID string) (map[model.RecipientStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM campaign_recipients WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.RecipientStatus]int{}
	for rows.Next() {
		var status model.RecipientStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
