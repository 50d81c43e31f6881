// Package scheduler promotes due campaigns and enqueues their fan-out jobs.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/flowsend/campaign-worker/internal/queue"
	"github.com/flowsend/campaign-worker/internal/repository"
)

type Scheduler struct {
	Campaigns repository.CampaignRepositoryInterface
	Publisher queue.CampaignPublisher
	Interval  time.Duration
}

// Start launches the polling loop in a background goroutine and returns a
// stop function. One pass runs immediately before the first tick.
func (s *Scheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.runOnce()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce()
			}
		}
	}()

	log.Printf("🕐 Scheduler running, polling every %s", interval)
	return cancel
}

func (s *Scheduler) runOnce() {
	if err := s.PromoteDue(time.Now()); err != nil {
		log.Printf("❌ Scheduler error: %v", err)
	}
}

// PromoteDue claims every due campaign and publishes one fan-out job per
// claimed row. The claim is the atomicity boundary: once a campaign is
// RUNNING a later pass will not re-claim it, so a failed publish leaves a
// detectable stall rather than a double send.
func (s *Scheduler) PromoteDue(now time.Time) error {
	claimed, err := s.Campaigns.ClaimDue(now)
	if err != nil {
		return err
	}

	for _, campaign := range claimed {
		log.Printf("🚀 Enqueuing campaign: %s (%s)", campaign.Title, campaign.ID)
		if err := s.Publisher.PublishCampaignJob(queue.CampaignJob{
			CampaignID:  campaign.ID,
			WorkspaceID: campaign.WorkspaceID,
		}); err != nil {
			log.Printf("❌ Failed to publish campaign job %s: %v", campaign.ID, err)
		}
	}

	if len(claimed) > 0 {
		log.Printf("✅ Enqueued %d campaigns", len(claimed))
	}
	return nil
}
