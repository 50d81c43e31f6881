package completion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsend/campaign-worker/internal/model"
)

type mockCampaignRepo struct {
	running []*model.Campaign

	completedID string
	sentCount   int
	failedCount int
}

func (m *mockCampaignRepo) Create(c *model.Campaign) error             { return nil }
func (m *mockCampaignRepo) GetByID(id string) (*model.Campaign, error) { return nil, nil }
func (m *mockCampaignRepo) ListByWorkspace(workspaceID string, offset, limit int) ([]*model.Campaign, int, error) {
	return nil, 0, nil
}
func (m *mockCampaignRepo) ClaimDue(now time.Time) ([]*model.Campaign, error) { return nil, nil }
func (m *mockCampaignRepo) ListRunning() ([]*model.Campaign, error)           { return m.running, nil }
func (m *mockCampaignRepo) SetTotalRecipients(id string, total int) error     { return nil }
func (m *mockCampaignRepo) MarkFailed(id string, errMsg string) error         { return nil }
func (m *mockCampaignRepo) Complete(id string, sentCount, failedCount int) error {
	m.completedID = id
	m.sentCount = sentCount
	m.failedCount = failedCount
	return nil
}

type mockRecipientRepo struct {
	inFlight int
	counts   map[model.RecipientStatus]int
}

func (m *mockRecipientRepo) InsertBatch(recipients []*model.CampaignRecipient) error { return nil }
func (m *mockRecipientRepo) GetByID(id string) (*model.CampaignRecipient, error)     { return nil, nil }
func (m *mockRecipientRepo) FindByMessageID(messageID string) (*model.CampaignRecipient, error) {
	return nil, nil
}
func (m *mockRecipientRepo) MarkSent(recipientID, campaignID, messageID string, sentAt time.Time) error {
	return nil
}
func (m *mockRecipientRepo) MarkFailed(recipientID, campaignID, errMsg string, retryCount int) error {
	return nil
}
func (m *mockRecipientRepo) RecordAttempt(recipientID string, retryCount int, errMsg string) error {
	return nil
}
func (m *mockRecipientRepo) UpdateStatus(recipientID string, from []model.RecipientStatus, to model.RecipientStatus) error {
	return nil
}
func (m *mockRecipientRepo) CountInFlight(campaignID string) (int, error) { return m.inFlight, nil }
func (m *mockRecipientRepo) GroupByStatus(campaignID string) (map[model.RecipientStatus]int, error) {
	return m.counts, nil
}

func runningCampaign(total int) *model.Campaign {
	return &model.Campaign{
		ID:              "camp-1",
		Title:           "Summer promo",
		Status:          model.CampaignRunning,
		TotalRecipients: &total,
	}
}

func TestCheckOnceCompletesDrainedCampaign(t *testing.T) {
	campaigns := &mockCampaignRepo{running: []*model.Campaign{runningCampaign(5)}}
	recipients := &mockRecipientRepo{
		inFlight: 0,
		counts: map[model.RecipientStatus]int{
			model.RecipientSent:   2,
			model.RecipientOpened: 1,
			model.RecipientFailed: 2,
		},
	}

	checker := &Checker{Campaigns: campaigns, Recipients: recipients}
	require.NoError(t, checker.CheckOnce())

	assert.Equal(t, "camp-1", campaigns.completedID)
	assert.Equal(t, 3, campaigns.sentCount, "OPENED counts as delivered")
	assert.Equal(t, 2, campaigns.failedCount)
}

func TestCheckOnceSkipsCampaignWithRecipientsInFlight(t *testing.T) {
	campaigns := &mockCampaignRepo{running: []*model.Campaign{runningCampaign(5)}}
	recipients := &mockRecipientRepo{inFlight: 2}

	checker := &Checker{Campaigns: campaigns, Recipients: recipients}
	require.NoError(t, checker.CheckOnce())

	assert.Empty(t, campaigns.completedID)
}

func TestCheckOnceSkipsCampaignStillIngesting(t *testing.T) {
	// No total yet means the ingestor has not finished counting rows, so
	// zero in-flight recipients is not evidence the campaign is done.
	campaign := runningCampaign(0)
	campaign.TotalRecipients = nil
	campaigns := &mockCampaignRepo{running: []*model.Campaign{campaign}}
	recipients := &mockRecipientRepo{inFlight: 0}

	checker := &Checker{Campaigns: campaigns, Recipients: recipients}
	require.NoError(t, checker.CheckOnce())

	assert.Empty(t, campaigns.completedID)
}

func TestCheckOnceCountsEngagedStatusesAsSent(t *testing.T) {
	campaigns := &mockCampaignRepo{running: []*model.Campaign{runningCampaign(4)}}
	recipients := &mockRecipientRepo{
		counts: map[model.RecipientStatus]int{
			model.RecipientSent:      1,
			model.RecipientOpened:    1,
			model.RecipientStarted:   1,
			model.RecipientCompleted: 1,
		},
	}

	checker := &Checker{Campaigns: campaigns, Recipients: recipients}
	require.NoError(t, checker.CheckOnce())

	assert.Equal(t, 4, campaigns.sentCount)
	assert.Zero(t, campaigns.failedCount)
}
