package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/edusight/observation-service/internal/platform/logger"
)

// NotificationMessage is one outbound user-mapping notification. Delivery is
// at-least-once: the message sits on a redis list until a downstream relay
// drains it.
type NotificationMessage struct {
	UserID        string    `json:"user_id"`
	Internal      bool      `json:"internal"`
	Text          string    `json:"text"`
	Type          string    `json:"type"`
	Action        string    `json:"action"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
	AppType       string    `json:"appType,omitempty"`
	SolutionType  string    `json:"solution_type,omitempty"`
	SolutionID    string    `json:"solution_id,omitempty"`
	ObservationID string    `json:"observation_id,omitempty"`
}

type NotificationQueue interface {
	Enqueue(ctx context.Context, msg NotificationMessage) error
	Close() error
}

type notificationQueue struct {
	log        *logger.Logger
	rdb        *goredis.Client
	key        string
	maxRetries int
}

func NewNotificationQueue(log *logger.Logger) (NotificationQueue, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	key := strings.TrimSpace(os.Getenv("NOTIFICATION_QUEUE_KEY"))
	if key == "" {
		key = "user_mapping_notifications"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &notificationQueue{
		log:        log.With("client", "NotificationQueue"),
		rdb:        rdb,
		key:        key,
		maxRetries: 3,
	}, nil
}

func (q *notificationQueue) Enqueue(ctx context.Context, msg NotificationMessage) error {
	if q == nil || q.rdb == nil {
		return fmt.Errorf("notification queue not initialized")
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = q.rdb.RPush(ctx, q.key, raw).Err()
		if lastErr == nil {
			return nil
		}
		if attempt < q.maxRetries {
			q.log.Warn("notification enqueue retrying",
				"attempt", attempt+1,
				"error", lastErr,
			)
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return fmt.Errorf("notification enqueue: %w", lastErr)
}

func (q *notificationQueue) Close() error {
	if q == nil || q.rdb == nil {
		return nil
	}
	return q.rdb.Close()
}
