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

// SubmissionPusher hands finished or newly created submissions to the
// downstream reporting and improvement pipelines. Both pushes are list
// writes drained by external relays; delivery is at-least-once.
type SubmissionPusher interface {
	PushForReporting(ctx context.Context, submissionID string) error
	PushToImprovement(ctx context.Context, payload any) error
	Close() error
}

type submissionPusher struct {
	log            *logger.Logger
	rdb            *goredis.Client
	reportingKey   string
	improvementKey string
}

func NewSubmissionPusher(log *logger.Logger) (SubmissionPusher, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	reportingKey := strings.TrimSpace(os.Getenv("SUBMISSION_RATING_QUEUE_KEY"))
	if reportingKey == "" {
		reportingKey = "observation_submissions_rating"
	}
	improvementKey := strings.TrimSpace(os.Getenv("IMPROVEMENT_PROJECT_QUEUE_KEY"))
	if improvementKey == "" {
		improvementKey = "improvement_project_submissions"
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

	return &submissionPusher{
		log:            log.With("client", "SubmissionPusher"),
		rdb:            rdb,
		reportingKey:   reportingKey,
		improvementKey: improvementKey,
	}, nil
}

func (p *submissionPusher) PushForReporting(ctx context.Context, submissionID string) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("submission pusher not initialized")
	}
	if strings.TrimSpace(submissionID) == "" {
		return fmt.Errorf("submission id required")
	}
	return p.rdb.RPush(ctx, p.reportingKey, submissionID).Err()
}

func (p *submissionPusher) PushToImprovement(ctx context.Context, payload any) error {
	if p == nil || p.rdb == nil {
		return fmt.Errorf("submission pusher not initialized")
	}
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	return p.rdb.RPush(ctx, p.improvementKey, raw).Err()
}

func (p *submissionPusher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}

func marshalPayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(payload)
	}
}
