// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"

	"github.com/flowsend/campaign-worker/internal/completion"
	"github.com/flowsend/campaign-worker/internal/config"
	"github.com/flowsend/campaign-worker/internal/db"
	"github.com/flowsend/campaign-worker/internal/delivery"
	"github.com/flowsend/campaign-worker/internal/ingest"
	"github.com/flowsend/campaign-worker/internal/queue"
	"github.com/flowsend/campaign-worker/internal/repository"
	"github.com/flowsend/campaign-worker/internal/scheduler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	cfg := config.Load()

	db.Init()
	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	recipientRepo := &repository.RecipientRepository{DB: db.DB}

	broker, err := queue.Connect(cfg.RabbitMQURL)
	if err != nil {
		log.Fatal("Failed to connect to RabbitMQ:", err)
	}
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Scheduler and completion checker poll loops
	sched := &scheduler.Scheduler{
		Campaigns: campaignRepo,
		Publisher: broker,
		Interval:  cfg.SchedulerPollInterval,
	}
	stopScheduler := sched.Start(ctx)
	defer stopScheduler()

	checker := &completion.Checker{
		Campaigns:  campaignRepo,
		Recipients: recipientRepo,
		Interval:   cfg.CompletionPollInterval,
	}
	stopChecker := checker.Start(ctx)
	defer stopChecker()

	// Fan-out consumer
	ingestor := &ingest.Ingestor{
		Campaigns:  campaignRepo,
		Recipients: recipientRepo,
		Fetcher:    ingest.NewHTTPFetcher(),
		Publisher:  broker,
		BatchSize:  cfg.BatchSize,
	}

	campaignMsgs, err := broker.Consume(queue.CampaignQueue, cfg.PrefetchCount)
	if err != nil {
		log.Fatal("Failed to consume campaign queue:", err)
	}
	go runCampaignConsumer(ctx, campaignMsgs, ingestor)

	// Delivery consumer
	worker := &delivery.Worker{
		Campaigns:  campaignRepo,
		Recipients: recipientRepo,
		Engine:     delivery.StubSessionEngine{},
		Sender:     delivery.StubChannelSender{},
		Limiter:    buildLimiter(cfg),
		MaxRetries: cfg.MaxRetries,
	}

	deliveryMsgs, err := broker.Consume(queue.DeliveryQueue, cfg.PrefetchCount)
	if err != nil {
		log.Fatal("Failed to consume delivery queue:", err)
	}
	go runDeliveryConsumer(ctx, deliveryMsgs, worker)

	log.Println("✅ Campaign worker service running")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	log.Println("🛑 Shutting down campaign worker service...")
}

// buildLimiter picks the shared Redis limiter when REDIS_ADDR is set, so
// multiple worker processes draw from one send budget. Without it the
// window counters are process-local.
func buildLimiter(cfg *config.Config) delivery.Limiter {
	if cfg.RedisAddr == "" {
		return delivery.NewWindowLimiter(cfg.RateMaxPerMinute, cfg.RateMaxPerHour, cfg.RateMessageDelay)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	log.Println("✅ Using Redis-backed rate limiter")
	return delivery.NewRedisLimiter(client, cfg.RateMaxPerMinute, cfg.RateMaxPerHour, cfg.RateMessageDelay)
}

// runCampaignConsumer drains fan-out jobs. Malformed payloads and failed
// jobs are rejected without requeue so they land in the dead-letter queue;
// campaigns the ingestor recorded as FAILED are acknowledged.
func runCampaignConsumer(ctx context.Context, msgs <-chan amqp.Delivery, ingestor *ingest.Ingestor) {
	for d := range msgs {
		var job queue.CampaignJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			log.Println("⚠️ Invalid campaign job payload:", err)
			d.Nack(false, false)
			continue
		}

		if err := ingestor.ProcessJob(ctx, job); err != nil {
			log.Println("❌ Failed to process campaign job:", err)
			d.Nack(false, false)
			continue
		}
		d.Ack(false)
	}
}

// runDeliveryConsumer drains delivery jobs and maps send outcomes to queue
// decisions: retryable failures are requeued, everything else is final.
func runDeliveryConsumer(ctx context.Context, msgs <-chan amqp.Delivery, worker *delivery.Worker) {
	for d := range msgs {
		var job queue.RecipientJob
		if err := json.Unmarshal(d.Body, &job); err != nil {
			log.Println("⚠️ Invalid recipient job payload:", err)
			d.Nack(false, true)
			continue
		}

		outcome := worker.ProcessJob(ctx, job)
		if outcome.Requeue() {
			d.Nack(false, true)
			continue
		}
		d.Ack(false)
	}
}
