package queue

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/streadway/amqp"
)

const (
	CampaignExchange = "campaign.exchange"
	CampaignQueue    = "campaign.execute"
	DeliveryQueue    = "whatsapp.send"

	campaignRoutingKey = "campaign"
)

// CampaignJob triggers fan-out of one campaign's recipient file.
type CampaignJob struct {
	CampaignID  string `json:"campaignId"`
	WorkspaceID string `json:"workspaceId"`
}

// RecipientJob instructs the delivery worker to send to one recipient.
type RecipientJob struct {
	RecipientID string         `json:"recipientId"`
	CampaignID  string         `json:"campaignId"`
	PhoneNumber string         `json:"phoneNumber"`
	Variables   map[string]any `json:"variables,omitempty"`
}

// CampaignPublisher is what the scheduler needs from the broker.
type CampaignPublisher interface {
	PublishCampaignJob(job CampaignJob) error
}

// RecipientPublisher is what the ingestor needs from the broker.
type RecipientPublisher interface {
	PublishRecipientJobs(jobs []RecipientJob) error
}

// Broker wraps one RabbitMQ connection and channel with the pipeline's
// topology declared on it.
type Broker struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Connect dials RabbitMQ and declares the exchange, both work queues and
// their dead-letter queues. Declarations are idempotent so every process
// can run this on startup.
func Connect(url string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	log.Println("✅ RabbitMQ connected and queues initialized")
	return &Broker{conn: conn, ch: ch}, nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(CampaignExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, name := range []string{CampaignQueue, DeliveryQueue} {
		dlq := name + ".dlq"
		_, err := ch.QueueDeclare(name, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlq,
		})
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", dlq, err)
		}
	}

	if err := ch.QueueBind(CampaignQueue, campaignRoutingKey, CampaignExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", CampaignQueue, err)
	}
	return nil
}

func (b *Broker) publish(exchange, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.ch.Publish(exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (b *Broker) PublishCampaignJob(job CampaignJob) error {
	if err := b.publish(CampaignExchange, campaignRoutingKey, job); err != nil {
		return err
	}
	log.Printf("📤 Published campaign job: %s", job.CampaignID)
	return nil
}

func (b *Broker) PublishRecipientJobs(jobs []RecipientJob) error {
	for _, job := range jobs {
		if err := b.publish("", DeliveryQueue, job); err != nil {
			return err
		}
	}
	log.Printf("📤 Published %d recipient jobs to delivery queue", len(jobs))
	return nil
}

// Consume starts delivering from the named queue with manual ack and the
// given prefetch bound on unacknowledged jobs per consumer.
func (b *Broker) Consume(queueName string, prefetch int) (<-chan amqp.Delivery, error) {
	if err := b.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	msgs, err := b.ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queueName, err)
	}
	return msgs, nil
}

func (b *Broker) Close() {
	if b.ch != nil {
		b.ch.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
	log.Println("🐰 RabbitMQ connection closed")
}

var (
	_ CampaignPublisher  = (*Broker)(nil)
	_ RecipientPublisher = (*Broker)(nil)
)
