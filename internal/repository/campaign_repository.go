package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/flowsend/campaign-worker/internal/errors"
	"github.com/flowsend/campaign-worker/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	GetByID(id string) (*model.Campaign, error)
	ListByWorkspace(workspaceID string, offset, limit int) ([]*model.Campaign, int, error)

	// ClaimDue atomically promotes every due campaign to RUNNING and returns
	// exactly the rows it claimed. A row is due when it is SCHEDULED with
	// execute_at <= now, or PENDING with execution mode NOW.
	ClaimDue(now time.Time) ([]*model.Campaign, error)

	ListRunning() ([]*model.Campaign, error)
	SetTotalRecipients(id string, total int) error
	MarkFailed(id string, errMsg string) error
	Complete(id string, sentCount, failedCount int) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, workspace_id, flow_id, title, file_url, execution_mode, execute_at,
	   status, total_recipients, sent_count, failed_count,
	   started_at, completed_at, COALESCE(error_message, ''), created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.WorkspaceID, &c.FlowID, &c.Title, &c.FileURL, &c.ExecutionMode, &c.ExecuteAt,
		&c.Status, &c.TotalRecipients, &c.SentCount, &c.FailedCount,
		&c.StartedAt, &c.CompletedAt, &c.ErrorMessage, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) Create(c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignPending
	}
	query := `
		INSERT INTO campaigns (id, workspace_id, flow_id, title, file_url, execution_mode, execute_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.DB.Exec(query,
		c.ID, c.WorkspaceID, c.FlowID, c.Title, c.FileURL, c.ExecutionMode, c.ExecuteAt, c.Status, c.CreatedAt,
	)
	return err
}

func (r *CampaignRepository) GetByID(id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListByWorkspace(workspaceID string, offset, limit int) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns
			  WHERE workspace_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.DB.Query(query, workspaceID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM campaigns WHERE workspace_id=$1`, workspaceID).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

// ClaimDue runs the select and the status flip inside one transaction so a
// concurrent scheduler pass cannot claim the same campaign twice.
func (r *CampaignRepository) ClaimDue(now time.Time) ([]*model.Campaign, error) {
	tx, err := r.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
		WITH due AS (
			SELECT id FROM campaigns
			WHERE (status=$1 AND execute_at <= $3)
			   OR (status=$2 AND execution_mode=$4)
			FOR UPDATE SKIP LOCKED
		)
		UPDATE campaigns c
		SET status=$5, started_at=$3, updated_at=$3
		FROM due
		WHERE c.id = due.id
		RETURNING c.id, c.workspace_id, c.flow_id, c.title, c.file_url, c.execution_mode, c.execute_at,
				  c.status, c.total_recipients, c.sent_count, c.failed_count,
				  c.started_at, c.completed_at, COALESCE(c.error_message, ''), c.created_at, c.updated_at`

	rows, err := tx.Query(query,
		model.CampaignScheduled, model.CampaignPending, now,
		model.ExecutionModeNow, model.CampaignRunning,
	)
	if err != nil {
		return nil, err
	}

	claimed := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *CampaignRepository) ListRunning() ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status=$1`
	rows, err := r.DB.Query(query, model.CampaignRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) SetTotalRecipients(id string, total int) error {
	query := `UPDATE campaigns SET total_recipients=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, total, id)
	return err
}

func (r *CampaignRepository) MarkFailed(id string, errMsg string) error {
	query := `UPDATE campaigns SET status=$1, error_message=$2, completed_at=NOW(), updated_at=NOW() WHERE id=$3`
	_, err := r.DB.Exec(query, model.CampaignFailed, errMsg, id)
	return err
}

// Complete is guarded on RUNNING so two aggregator passes racing on the same
// campaign close it exactly once.
func (r *CampaignRepository) Complete(id string, sentCount, failedCount int) error {
	query := `
		UPDATE campaigns
		SET status=$1, sent_count=$2, failed_count=$3, completed_at=NOW(), updated_at=NOW()
		WHERE id=$4 AND status=$5
	`
	_, err := r.DB.Exec(query, model.CampaignCompleted, sentCount, failedCount, id, model.CampaignRunning)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
