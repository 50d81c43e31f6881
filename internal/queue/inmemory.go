package queue

import "sync"

// InMemory is a broker stand-in for tests and single-process runs. Handlers
// are invoked synchronously; a handler error leaves the job with the caller,
// mirroring a nack without requeue.
type InMemory struct {
	mu                sync.Mutex
	campaignHandlers  []func(CampaignJob) error
	recipientHandlers []func(RecipientJob) error
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (q *InMemory) SubscribeCampaignJobs(handler func(CampaignJob) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.campaignHandlers = append(q.campaignHandlers, handler)
}

func (q *InMemory) SubscribeRecipientJobs(handler func(RecipientJob) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recipientHandlers = append(q.recipientHandlers, handler)
}

func (q *InMemory) PublishCampaignJob(job CampaignJob) error {
	q.mu.Lock()
	handlers := q.campaignHandlers
	q.mu.Unlock()

	for _, handler := range handlers {
		if err := handler(job); err != nil {
			return err
		}
	}
	return nil
}

func (q *InMemory) PublishRecipientJobs(jobs []RecipientJob) error {
	q.mu.Lock()
	handlers := q.recipientHandlers
	q.mu.Unlock()

	for _, job := range jobs {
		for _, handler := range handlers {
			if err := handler(job); err != nil {
				return err
			}
		}
	}
	return nil
}

var (
	_ CampaignPublisher  = (*InMemory)(nil)
	_ RecipientPublisher = (*InMemory)(nil)
)
