// Package completion closes out running campaigns once no recipient is
// left in flight.
package completion

import (
	"context"
	"log"
	"time"

	"github.com/flowsend/campaign-worker/internal/model"
	"github.com/flowsend/campaign-worker/internal/repository"
)

type Checker struct {
	Campaigns  repository.CampaignRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Interval   time.Duration
}

// Start launches the polling loop and returns a stop function.
func (c *Checker) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	interval := c.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.runOnce()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.runOnce()
			}
		}
	}()

	log.Printf("🔍 Completion checker running, polling every %s", interval)
	return cancel
}

func (c *Checker) runOnce() {
	if err := c.CheckOnce(); err != nil {
		log.Printf("❌ Completion checker error: %v", err)
	}
}

// CheckOnce inspects every RUNNING campaign and completes those with zero
// recipients still PENDING or QUEUED. It only reads then conditionally
// writes single campaign rows, so it is safe to run concurrently with
// itself across restarts.
func (c *Checker) CheckOnce() error {
	running, err := c.Campaigns.ListRunning()
	if err != nil {
		return err
	}

	for _, campaign := range running {
		inFlight, err := c.Recipients.CountInFlight(campaign.ID)
		if err != nil {
			return err
		}

		if inFlight > 0 || campaign.TotalRecipients == nil {
			continue
		}

		counts, err := c.Recipients.GroupByStatus(campaign.ID)
		if err != nil {
			return err
		}
		sentCount := counts[model.RecipientSent] + counts[model.RecipientOpened] +
			counts[model.RecipientStarted] + counts[model.RecipientCompleted]
		failedCount := counts[model.RecipientFailed]

		if err := c.Campaigns.Complete(campaign.ID, sentCount, failedCount); err != nil {
			return err
		}
		log.Printf("✅ Campaign %q completed: %d sent, %d failed", campaign.Title, sentCount, failedCount)
	}
	return nil
}
