// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignPending   CampaignStatus = "PENDING"
	CampaignScheduled CampaignStatus = "SCHEDULED"
	CampaignRunning   CampaignStatus = "RUNNING"
	CampaignCompleted CampaignStatus = "COMPLETED"
	CampaignFailed    CampaignStatus = "FAILED"
	CampaignPaused    CampaignStatus = "PAUSED"
)

type ExecutionMode string

const (
	ExecutionModeNow       ExecutionMode = "NOW"
	ExecutionModeScheduled ExecutionMode = "SCHEDULED"
)

type Campaign struct {
	ID              string         `db:"id" json:"id"`
	WorkspaceID     string         `db:"workspace_id" json:"workspace_id"`
	FlowID          string         `db:"flow_id" json:"flow_id"`
	Title           string         `db:"title" json:"title"`
	FileURL         string         `db:"file_url" json:"file_url"`
	ExecutionMode   ExecutionMode  `db:"execution_mode" json:"execution_mode"`
	ExecuteAt       *time.Time     `db:"execute_at" json:"execute_at,omitempty"`
	Status          CampaignStatus `db:"status" json:"status"`
	TotalRecipients *int           `db:"total_recipients" json:"total_recipients,omitempty"`
	SentCount       int            `db:"sent_count" json:"sent_count"`
	FailedCount     int            `db:"failed_count" json:"failed_count"`
	StartedAt       *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	ErrorMessage    string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}
