// internal/service/campaign_service.go
package service

import (
	"fmt"
	"time"

	"github.com/flowsend/campaign-worker/internal/model"
	"github.com/flowsend/campaign-worker/internal/repository"
)

type CampaignService struct {
	Campaigns  repository.CampaignRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
}

type CampaignDetails struct {
	Campaign *model.Campaign `json:"campaign"`
	Stats    map[string]int  `json:"stats"`
}

// CreateCampaign validates the execution mode and persists a new campaign.
// NOW campaigns start PENDING (picked up on the scheduler's next poll);
// SCHEDULED campaigns wait for their executeAt.
func (s *CampaignService) CreateCampaign(workspaceID, flowID, title, fileURL string, mode model.ExecutionMode, executeAt *time.Time) (*model.Campaign, error) {
	if workspaceID == "" || flowID == "" || title == "" || fileURL == "" {
		return nil, fmt.Errorf("workspace_id, flow_id, title and file_url are required")
	}

	var status model.CampaignStatus
	switch mode {
	case model.ExecutionModeNow:
		status = model.CampaignPending
	case model.ExecutionModeScheduled:
		if executeAt == nil {
			return nil, fmt.Errorf("execute_at is required for scheduled campaigns")
		}
		status = model.CampaignScheduled
	default:
		return nil, fmt.Errorf("invalid execution mode: %s", mode)
	}

	c := &model.Campaign{
		WorkspaceID:   workspaceID,
		FlowID:        flowID,
		Title:         title,
		FileURL:       fileURL,
		ExecutionMode: mode,
		ExecuteAt:     executeAt,
		Status:        status,
	}
	if err := s.Campaigns.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCampaigns fetches a workspace's campaigns with pagination
func (s *CampaignService) ListCampaigns(workspaceID string, page, pageSize int) ([]*model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	campaigns, total, err := s.Campaigns.ListByWorkspace(workspaceID, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

// GetCampaignDetails returns a campaign together with its recipient status
// breakdown.
func (s *CampaignService) GetCampaignDetails(id string) (*CampaignDetails, error) {
	campaign, err := s.Campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}

	counts, err := s.Recipients.GroupByStatus(id)
	if err != nil {
		return nil, err
	}

	stats := map[string]int{"total": 0}
	for status, count := range counts {
		stats[string(status)] = count
		stats["total"] += count
	}

	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}
