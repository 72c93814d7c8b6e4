package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/lumisalon/salon-chat/internal/ai"
	"github.com/lumisalon/salon-chat/internal/catalog"
	"github.com/lumisalon/salon-chat/internal/chat"
	"github.com/lumisalon/salon-chat/internal/config"
	"github.com/lumisalon/salon-chat/internal/db"
	"github.com/lumisalon/salon-chat/internal/store/rabbitmq"
	"github.com/lumisalon/salon-chat/internal/vector"
)

type jobMsg struct {
	JobID string `json:"job_id"`
}

const maxAttempts = 3

// deliveryAttempts counts how many times a delivery has already been
// through the retry queue, from the x-death header rabbit maintains.
func deliveryAttempts(d amqp.Delivery, retryQueue string) int64 {
	deaths, ok := d.Headers["x-death"].([]interface{})
	if !ok {
		return 0
	}
	for _, raw := range deaths {
		entry, ok := raw.(amqp.Table)
		if !ok {
			continue
		}
		if q, _ := entry["queue"].(string); q != retryQueue {
			continue
		}
		if n, ok := entry["count"].(int64); ok {
			return n
		}
	}
	return 0
}

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	if err := gdb.AutoMigrate(&chat.IndexJob{}, &catalog.Service{}, &vector.ServiceVector{}); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	repo := chat.NewRepo(gdb)
	catalogRepo := catalog.NewRepo(gdb)
	vectors := vector.NewStore(gdb)
	embedder := ai.NewEmbedClient(cfg.EmbedBaseURL, cfg.EmbedAPIKey, cfg.EmbedModel, cfg.EmbedTimeout)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	// Dedicated channel for DLQ copies; publishes are serialized by dlqMu
	// because amqp channels are not safe for concurrent publishing.
	dlqCh, err := conn.Channel()
	if err != nil {
		log.Fatalf("dlq channel: %v", err)
	}
	defer dlqCh.Close()
	var dlqMu sync.Mutex

	park := func(ctx context.Context, body []byte, reason string) {
		dlqMu.Lock()
		defer dlqMu.Unlock()
		if err := rabbitmq.PublishDead(ctx, dlqCh, cfg.RabbitQueue, body); err != nil {
			log.Printf("dlq publish failed reason=%s err=%v", reason, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m jobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					// malformed payloads never succeed on retry
					log.Printf("worker=%d bad message: %v", workerID, err)
					park(ctx, d.Body, "bad message")
					_ = d.Ack(false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, repo, catalogRepo, vectors, embedder, m.JobID); err != nil {
					attempts := deliveryAttempts(d, rabbitmq.RetryName(cfg.RabbitQueue))
					log.Printf("worker=%d job %s failed attempt=%d cost=%s err=%v", workerID, m.JobID, attempts+1, time.Since(start), err)
					if attempts >= maxAttempts-1 {
						park(ctx, d.Body, "attempts exhausted")
						_ = d.Ack(false)
					} else {
						// nack routes through the retry queue back to main
						_ = d.Nack(false, false)
					}
					continue
				}
				log.Printf("worker=%d job %s done cost=%s", workerID, m.JobID, time.Since(start))

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed job=%s err=%v", workerID, m.JobID, err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

// handleJob embeds every catalog service and replaces the persisted
// vector set wholesale, so index and catalog can never diverge across
// a partial rebuild.
func handleJob(ctx context.Context, repo *chat.Repo, catalogRepo *catalog.Repo, vectors *vector.Store, embedder ai.Embedder, jobID string) error {
	_ = repo.UpdateJobStatusRunning(ctx, jobID)

	if _, err := repo.GetJobByID(ctx, jobID); err != nil {
		return err
	}

	services, err := catalogRepo.ListAll(ctx)
	if err != nil {
		_ = repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	ids := make([]string, 0, len(services))
	vecs := make([][]float64, 0, len(services))
	for _, s := range services {
		vec, err := embedder.Embed(ctx, catalog.EmbeddingText(s))
		if err != nil {
			// A rebuild is all-or-nothing; a partial index would
			// silently shrink retrieval quality.
			wrapped := fmt.Errorf("embed service %s: %w", s.ID, err)
			_ = repo.MarkJobFailed(ctx, jobID, wrapped.Error())
			return wrapped
		}
		ids = append(ids, s.ID)
		vecs = append(vecs, vec)
	}

	if err := vectors.ReplaceAll(ctx, ids, vecs); err != nil {
		_ = repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	return repo.MarkJobSucceeded(ctx, jobID, len(ids))
}
