package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsend/campaign-worker/internal/completion"
	"github.com/flowsend/campaign-worker/internal/delivery"
	appErrors "github.com/flowsend/campaign-worker/internal/errors"
	"github.com/flowsend/campaign-worker/internal/ingest"
	"github.com/flowsend/campaign-worker/internal/model"
	"github.com/flowsend/campaign-worker/internal/queue"
	"github.com/flowsend/campaign-worker/internal/scheduler"
)

// In-memory repositories backing the full pipeline without Postgres.

type memCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
}

func newMemCampaignRepo() *memCampaignRepo {
	return &memCampaignRepo{campaigns: map[string]*model.Campaign{}}
}

func (m *memCampaignRepo) Create(c *model.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.campaigns[c.ID] = c
	return nil
}

func (m *memCampaignRepo) GetByID(id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, nil
}

func (m *memCampaignRepo) ListByWorkspace(workspaceID string, offset, limit int) ([]*model.Campaign, int, error) {
	return nil, 0, nil
}

func (m *memCampaignRepo) ClaimDue(now time.Time) ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []*model.Campaign
	for _, c := range m.campaigns {
		due := (c.Status == model.CampaignScheduled && c.ExecuteAt != nil && !c.ExecuteAt.After(now)) ||
			(c.Status == model.CampaignPending && c.ExecutionMode == model.ExecutionModeNow)
		if due {
			c.Status = model.CampaignRunning
			c.StartedAt = &now
			claimed = append(claimed, c)
		}
	}
	return claimed, nil
}

func (m *memCampaignRepo) ListRunning() ([]*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var running []*model.Campaign
	for _, c := range m.campaigns {
		if c.Status == model.CampaignRunning {
			running = append(running, c)
		}
	}
	return running, nil
}

func (m *memCampaignRepo) SetTotalRecipients(id string, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[id]; ok {
		c.TotalRecipients = &total
	}
	return nil
}

func (m *memCampaignRepo) MarkFailed(id string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[id]; ok {
		c.Status = model.CampaignFailed
		c.ErrorMessage = errMsg
	}
	return nil
}

func (m *memCampaignRepo) Complete(id string, sentCount, failedCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != model.CampaignRunning {
		return nil
	}
	c.Status = model.CampaignCompleted
	c.SentCount = sentCount
	c.FailedCount = failedCount
	now := time.Now()
	c.CompletedAt = &now
	return nil
}

type memRecipientRepo struct {
	mu         sync.Mutex
	recipients map[string]*model.CampaignRecipient
}

func newMemRecipientRepo() *memRecipientRepo {
	return &memRecipientRepo{recipients: map[string]*model.CampaignRecipient{}}
}

func (m *memRecipientRepo) InsertBatch(batch []*model.CampaignRecipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range batch {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		m.recipients[r.ID] = r
	}
	return nil
}

func (m *memRecipientRepo) GetByID(id string) (*model.CampaignRecipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recipients[id], nil
}

func (m *memRecipientRepo) FindByMessageID(messageID string) (*model.CampaignRecipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recipients {
		if r.MessageID == messageID {
			return r, nil
		}
	}
	return nil, nil
}

func (m *memRecipientRepo) MarkSent(recipientID, campaignID, messageID string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.recipients[recipientID]; ok {
		r.Status = model.RecipientSent
		r.MessageID = messageID
		r.SentAt = &sentAt
	}
	return nil
}

func (m *memRecipientRepo) MarkFailed(recipientID, campaignID, errMsg string, retryCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.recipients[recipientID]; ok {
		r.Status = model.RecipientFailed
		r.RetryCount = retryCount
	}
	return nil
}

func (m *memRecipientRepo) RecordAttempt(recipientID string, retryCount int, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.recipients[recipientID]; ok {
		r.RetryCount = retryCount
	}
	return nil
}

func (m *memRecipientRepo) UpdateStatus(recipientID string, from []model.RecipientStatus, to model.RecipientStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[recipientID]
	if !ok {
		return nil
	}
	for _, s := range from {
		if r.Status == s {
			r.Status = to
			break
		}
	}
	return nil
}

func (m *memRecipientRepo) CountInFlight(campaignID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, r := range m.recipients {
		if r.CampaignID == campaignID && r.Status.Deliverable() {
			count++
		}
	}
	return count, nil
}

func (m *memRecipientRepo) GroupByStatus(campaignID string) (map[model.RecipientStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[model.RecipientStatus]int{}
	for _, r := range m.recipients {
		if r.CampaignID == campaignID {
			counts[r.Status]++
		}
	}
	return counts, nil
}

type recordingSender struct {
	mu    sync.Mutex
	sends []string
}

func (s *recordingSender) Send(ctx context.Context, campaign *model.Campaign, msg delivery.OutboundMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, msg.To)
	return fmt.Sprintf("wamid-%d", len(s.sends)), nil
}

func writeRecipientFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recipients.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

// Full pipeline wired over the in-memory broker: create a NOW campaign,
// promote it, fan out the file, deliver every valid row, then complete.
func TestPipelineNowCampaign(t *testing.T) {
	campaigns := newMemCampaignRepo()
	recipients := newMemRecipientRepo()
	broker := queue.NewInMemory()
	sender := &recordingSender{}
	ctx := context.Background()

	filePath := writeRecipientFile(t, "phone,name\n5551234001,Alice\n123,Bad Row\n5551234002,Bob\n")

	ingestor := &ingest.Ingestor{
		Campaigns:  campaigns,
		Recipients: recipients,
		Fetcher:    ingest.NewHTTPFetcher(),
		Publisher:  broker,
		BatchSize:  100,
	}
	broker.SubscribeCampaignJobs(func(job queue.CampaignJob) error {
		return ingestor.ProcessJob(ctx, job)
	})

	worker := &delivery.Worker{
		Campaigns:  campaigns,
		Recipients: recipients,
		Engine:     delivery.StubSessionEngine{},
		Sender:     sender,
		Limiter:    delivery.NewWindowLimiter(0, 0, 0),
		MaxRetries: 3,
	}
	broker.SubscribeRecipientJobs(func(job queue.RecipientJob) error {
		outcome := worker.ProcessJob(ctx, job)
		if outcome.Requeue() {
			return outcome.Err
		}
		return nil
	})

	campaign := &model.Campaign{
		ID:            "camp-e2e",
		WorkspaceID:   "ws-1",
		FlowID:        "flow-1",
		Title:         "Launch blast",
		FileURL:       filePath,
		ExecutionMode: model.ExecutionModeNow,
		Status:        model.CampaignPending,
	}
	require.NoError(t, campaigns.Create(campaign))

	sched := &scheduler.Scheduler{Campaigns: campaigns, Publisher: broker}
	require.NoError(t, sched.PromoteDue(time.Now()))

	// The invalid phone row is dropped before counting.
	require.NotNil(t, campaign.TotalRecipients)
	assert.Equal(t, 2, *campaign.TotalRecipients)
	assert.ElementsMatch(t, []string{"5551234001", "5551234002"}, sender.sends)

	checker := &completion.Checker{Campaigns: campaigns, Recipients: recipients}
	require.NoError(t, checker.CheckOnce())

	assert.Equal(t, model.CampaignCompleted, campaign.Status)
	assert.Equal(t, 2, campaign.SentCount)
	assert.Zero(t, campaign.FailedCount)
	require.NotNil(t, campaign.CompletedAt)
}

type flakySender struct {
	mu    sync.Mutex
	sends int
}

// Send fails for phone numbers ending in 9.
func (s *flakySender) Send(ctx context.Context, campaign *model.Campaign, msg delivery.OutboundMessage) (string, error) {
	if msg.To[len(msg.To)-1] == '9' {
		return "", fmt.Errorf("provider rejected %s", msg.To)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
	return fmt.Sprintf("wamid-%d", s.sends), nil
}

// Concurrent deliveries with a mix of successes and terminal failures must
// still account for every recipient exactly once.
func TestPipelineCountsUnderConcurrentDelivery(t *testing.T) {
	campaigns := newMemCampaignRepo()
	recipients := newMemRecipientRepo()
	ctx := context.Background()

	total := 20
	campaign := &model.Campaign{
		ID: "camp-conc", WorkspaceID: "ws-1", FlowID: "flow-1", Title: "Blast",
		ExecutionMode: model.ExecutionModeNow,
		Status:        model.CampaignRunning,
		StartedAt:     &time.Time{},
	}
	require.NoError(t, campaigns.Create(campaign))
	require.NoError(t, campaigns.SetTotalRecipients(campaign.ID, total))

	batch := make([]*model.CampaignRecipient, total)
	for i := range batch {
		batch[i] = &model.CampaignRecipient{
			CampaignID:  campaign.ID,
			PhoneNumber: fmt.Sprintf("55512345%02d", i),
			Status:      model.RecipientQueued,
		}
	}
	require.NoError(t, recipients.InsertBatch(batch))

	worker := &delivery.Worker{
		Campaigns:  campaigns,
		Recipients: recipients,
		Engine:     delivery.StubSessionEngine{},
		Sender:     &flakySender{},
		Limiter:    delivery.NewWindowLimiter(0, 0, 0),
		MaxRetries: 1,
	}

	var wg sync.WaitGroup
	for _, rec := range batch {
		wg.Add(1)
		go func(rec *model.CampaignRecipient) {
			defer wg.Done()
			worker.ProcessJob(ctx, queue.RecipientJob{
				RecipientID: rec.ID,
				CampaignID:  rec.CampaignID,
				PhoneNumber: rec.PhoneNumber,
			})
		}(rec)
	}
	wg.Wait()

	checker := &completion.Checker{Campaigns: campaigns, Recipients: recipients}
	require.NoError(t, checker.CheckOnce())

	// Phones ending in 9 fail terminally (max one attempt): 2 of 20.
	assert.Equal(t, model.CampaignCompleted, campaign.Status)
	assert.Equal(t, 18, campaign.SentCount)
	assert.Equal(t, 2, campaign.FailedCount)
	assert.Equal(t, total, campaign.SentCount+campaign.FailedCount)
}

func TestPipelineScheduledPromotion(t *testing.T) {
	campaigns := newMemCampaignRepo()
	broker := queue.NewInMemory()

	var published []queue.CampaignJob
	broker.SubscribeCampaignJobs(func(job queue.CampaignJob) error {
		published = append(published, job)
		return nil
	})

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	require.NoError(t, campaigns.Create(&model.Campaign{
		ID: "camp-due", WorkspaceID: "ws-1", FlowID: "flow-1", Title: "Due",
		ExecutionMode: model.ExecutionModeScheduled, ExecuteAt: &past,
		Status: model.CampaignScheduled,
	}))
	require.NoError(t, campaigns.Create(&model.Campaign{
		ID: "camp-later", WorkspaceID: "ws-1", FlowID: "flow-1", Title: "Later",
		ExecutionMode: model.ExecutionModeScheduled, ExecuteAt: &future,
		Status: model.CampaignScheduled,
	}))

	sched := &scheduler.Scheduler{Campaigns: campaigns, Publisher: broker}
	require.NoError(t, sched.PromoteDue(time.Now()))

	require.Len(t, published, 1)
	assert.Equal(t, "camp-due", published[0].CampaignID)

	due, err := campaigns.GetByID("camp-due")
	require.NoError(t, err)
	assert.Equal(t, model.CampaignRunning, due.Status)

	later, err := campaigns.GetByID("camp-later")
	require.NoError(t, err)
	assert.Equal(t, model.CampaignScheduled, later.Status)
}

func TestPipelineFailedIngestMarksCampaign(t *testing.T) {
	campaigns := newMemCampaignRepo()
	recipients := newMemRecipientRepo()
	broker := queue.NewInMemory()
	ctx := context.Background()

	ingestor := &ingest.Ingestor{
		Campaigns:  campaigns,
		Recipients: recipients,
		Fetcher:    ingest.NewHTTPFetcher(),
		Publisher:  broker,
	}
	broker.SubscribeCampaignJobs(func(job queue.CampaignJob) error {
		return ingestor.ProcessJob(ctx, job)
	})

	campaign := &model.Campaign{
		ID: "camp-bad", WorkspaceID: "ws-1", FlowID: "flow-1", Title: "Bad file",
		FileURL:       filepath.Join(t.TempDir(), "missing.csv"),
		ExecutionMode: model.ExecutionModeNow,
		Status:        model.CampaignPending,
	}
	require.NoError(t, campaigns.Create(campaign))

	sched := &scheduler.Scheduler{Campaigns: campaigns, Publisher: broker}
	require.NoError(t, sched.PromoteDue(time.Now()))

	assert.Equal(t, model.CampaignFailed, campaign.Status)
	assert.NotEmpty(t, campaign.ErrorMessage)
}
