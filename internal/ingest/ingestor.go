package ingest

import (
	"context"
	"errors"
	"log"

	appErrors "github.com/flowsend/campaign-worker/internal/errors"
	"github.com/flowsend/campaign-worker/internal/model"
	"github.com/flowsend/campaign-worker/internal/queue"
	"github.com/flowsend/campaign-worker/internal/repository"
)

// Ingestor expands one campaign fan-out job into validated recipient rows
// plus one delivery job per row.
type Ingestor struct {
	Campaigns  repository.CampaignRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Fetcher    FileFetcher
	Publisher  queue.RecipientPublisher
	BatchSize  int
}

// ProcessJob handles one fan-out job. A nil return means the job is done
// (including campaigns recorded as FAILED); a non-nil return means the
// consumer should reject the job to the dead-letter queue.
func (ing *Ingestor) ProcessJob(ctx context.Context, job queue.CampaignJob) error {
	log.Printf("📋 Processing campaign: %s", job.CampaignID)

	campaign, err := ing.Campaigns.GetByID(job.CampaignID)
	if err != nil {
		var notFound *appErrors.ErrCampaignNotFound
		if errors.As(err, &notFound) {
			log.Printf("❌ Campaign not found: %s", job.CampaignID)
			return nil
		}
		return err
	}

	if campaign.Status != model.CampaignRunning {
		log.Printf("⏭️ Campaign %s is not RUNNING, skipping", campaign.ID)
		return nil
	}

	if err := ing.ingest(ctx, campaign); err != nil {
		// Fatal for the campaign: record it and do not retry. The operator
		// fixes the input and recreates the campaign.
		log.Printf("❌ Failed to process campaign %s: %v", campaign.ID, err)
		return ing.Campaigns.MarkFailed(campaign.ID, err.Error())
	}

	log.Printf("✅ Campaign %s fully queued", campaign.ID)
	return nil
}

func (ing *Ingestor) ingest(ctx context.Context, campaign *model.Campaign) error {
	data, err := ing.Fetcher.Fetch(ctx, campaign.FileURL)
	if err != nil {
		return err
	}

	rows, err := ParseRecipientFile(campaign.FileURL, data)
	if err != nil {
		return err
	}
	log.Printf("📊 Parsed %d rows from file", len(rows))

	recipients := make([]*model.CampaignRecipient, 0, len(rows))
	for _, row := range rows {
		phone, ok := ExtractPhone(row)
		if !ok {
			log.Printf("⚠️ Skipping row with invalid phone (campaign %s)", campaign.ID)
			continue
		}
		recipients = append(recipients, &model.CampaignRecipient{
			CampaignID:  campaign.ID,
			PhoneNumber: phone,
			Variables:   Variables(row),
			Status:      model.RecipientQueued,
		})
	}
	log.Printf("✅ Valid recipients: %d", len(recipients))

	if err := ing.Campaigns.SetTotalRecipients(campaign.ID, len(recipients)); err != nil {
		return err
	}

	batchSize := ing.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	// Each batch is published right after it is persisted so delivery can
	// start before the whole file finishes ingesting.
	for start := 0; start < len(recipients); start += batchSize {
		end := start + batchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		batch := recipients[start:end]

		if err := ing.Recipients.InsertBatch(batch); err != nil {
			return err
		}

		jobs := make([]queue.RecipientJob, len(batch))
		for i, rec := range batch {
			jobs[i] = queue.RecipientJob{
				RecipientID: rec.ID,
				CampaignID:  rec.CampaignID,
				PhoneNumber: rec.PhoneNumber,
				Variables:   rec.Variables,
			}
		}
		if err := ing.Publisher.PublishRecipientJobs(jobs); err != nil {
			return err
		}

		log.Printf("📤 Batch %d: %d recipients queued", start/batchSize+1, len(batch))
	}

	return nil
}
