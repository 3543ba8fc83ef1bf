package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Task asks a worker to run one discovery pass. An empty ListingURLs
// means "use the configured default listing pages".
type Task struct {
	RunID       string    `json:"run_id"`
	ListingURLs []string  `json:"listing_urls,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// NewTask creates a task with a fresh run ID.
func NewTask(listingURLs []string) Task {
	return Task{
		RunID:       uuid.NewString(),
		ListingURLs: listingURLs,
		EnqueuedAt:  time.Now(),
	}
}

// Publisher pushes discovery tasks to a Redis list.
type Publisher struct {
	client    *redis.Client
	queueName string
}

// NewPublisher creates a new task publisher.
func NewPublisher(client *redis.Client, queueName string) *Publisher {
	if queueName == "" {
		queueName = "discovery:tasks"
	}
	return &Publisher{
		client:    client,
		queueName: queueName,
	}
}

// Publish enqueues a single task.
func (p *Publisher) Publish(ctx context.Context, task Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	if err := p.client.LPush(ctx, p.queueName, data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}

	return nil
}

// QueueLength returns the current queue length.
func (p *Publisher) QueueLength(ctx context.Context) (int64, error) {
	return p.client.LLen(ctx, p.queueName).Result()
}

// Consumer pulls discovery tasks from the Redis list.
type Consumer struct {
	client    *redis.Client
	queueName string
	timeout   time.Duration
}

// NewConsumer creates a new task consumer.
func NewConsumer(client *redis.Client, queueName string, timeout time.Duration) *Consumer {
	if queueName == "" {
		queueName = "discovery:tasks"
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Consumer{
		client:    client,
		queueName: queueName,
		timeout:   timeout,
	}
}

// Consume blocks until a task is available or the timeout elapses.
// Returns nil, nil on timeout.
func (c *Consumer) Consume(ctx context.Context) (*Task, error) {
	result, err := c.client.BRPop(ctx, c.timeout, c.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Timeout, no task available
		}
		return nil, fmt.Errorf("brpop: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}

	return &task, nil
}

// Run starts a continuous consumer loop, invoking handler per task.
// Handler errors are the handler's problem; the loop keeps going until
// the context is cancelled.
func (c *Consumer) Run(ctx context.Context, handler func(Task) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		task, err := c.Consume(ctx)
		if err != nil {
			return fmt.Errorf("consume: %w", err)
		}

		if task == nil {
			continue // Timeout, try again
		}

		if err := handler(*task); err != nil {
			log.Printf("Task %s failed: %v", task.RunID, err)
		}
	}
}
