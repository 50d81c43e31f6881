package delivery

import (
	"context"
	"log"
	"time"

	"github.com/flowsend/campaign-worker/internal/model"
	"github.com/flowsend/campaign-worker/internal/queue"
	"github.com/flowsend/campaign-worker/internal/repository"
)

// Worker delivers exactly one outbound message attempt per recipient per
// job, honoring the global send-rate ceiling, with bounded retry.
type Worker struct {
	Campaigns  repository.CampaignRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Engine     SessionEngine
	Sender     ChannelSender
	Limiter    Limiter
	MaxRetries int
}

// ProcessJob handles one delivery job and reports the outcome; the consumer
// decides ack/nack from it. Every failure path has already been persisted
// on the recipient row by the time this returns.
func (w *Worker) ProcessJob(ctx context.Context, job queue.RecipientJob) Outcome {
	recipient, err := w.Recipients.GetByID(job.RecipientID)
	if err != nil {
		return Retryable(err)
	}
	if recipient == nil {
		log.Printf("❌ Recipient not found: %s", job.RecipientID)
		return Skipped()
	}

	// Queue redelivery guard: once a recipient moved past QUEUED it is
	// never re-processed.
	if !recipient.Status.Deliverable() {
		log.Printf("⏭️ Recipient %s already %s, skipping", recipient.ID, recipient.Status)
		return Skipped()
	}

	if err := w.Limiter.Wait(ctx); err != nil {
		return Retryable(err)
	}

	campaign, err := w.Campaigns.GetByID(job.CampaignID)
	if err != nil {
		return Retryable(err)
	}

	messageID, sendErr := w.send(ctx, campaign, job)
	if sendErr != nil {
		return w.recordFailure(recipient.ID, job.CampaignID, recipient.RetryCount, sendErr)
	}

	if err := w.Recipients.MarkSent(recipient.ID, job.CampaignID, messageID, time.Now()); err != nil {
		// The message went out but the record did not stick; redeliver and
		// let the idempotency guard decide next time.
		return Retryable(err)
	}

	log.Printf("✅ Message sent to %s", job.PhoneNumber)
	return Sent(messageID)
}

func (w *Worker) send(ctx context.Context, campaign *model.Campaign, job queue.RecipientJob) (string, error) {
	messages, err := w.Engine.StartSession(ctx, campaign, job.PhoneNumber, job.Variables)
	if err != nil {
		return "", err
	}

	var messageID string
	for _, msg := range messages {
		id, err := w.Sender.Send(ctx, campaign, msg)
		if err != nil {
			return "", err
		}
		messageID = id
	}
	return messageID, nil
}

func (w *Worker) recordFailure(recipientID, campaignID string, retryCount int, sendErr error) Outcome {
	newCount := retryCount + 1

	if newCount >= w.MaxRetries {
		if err := w.Recipients.MarkFailed(recipientID, campaignID, sendErr.Error(), newCount); err != nil {
			return Retryable(err)
		}
		log.Printf("❌ Recipient %s failed after %d attempts: %v", recipientID, newCount, sendErr)
		return Terminal(sendErr)
	}

	if err := w.Recipients.RecordAttempt(recipientID, newCount, sendErr.Error()); err != nil {
		return Retryable(err)
	}
	log.Printf("⚠️ Attempt %d/%d failed for recipient %s: %v", newCount, w.MaxRetries, recipientID, sendErr)
	return Retryable(sendErr)
}
