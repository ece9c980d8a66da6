package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PredictionQueue hands prediction jobs to background workers. Job state
// (queued/processing/ready/failed) lives on the prediction row itself; the
// queue only guarantees delivery with bounded retries.
type PredictionQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	maxAttempts  int
	block        time.Duration
	claimIdle    time.Duration
	maxLen       int64
	once         sync.Once
}

type Config struct {
	Addr        string
	Password    string
	Stream      string
	Group       string
	MaxAttempts int
	Block       time.Duration
	ClaimIdle   time.Duration
	MaxLen      int64
}

func NewPredictionQueue(cfg Config) (*PredictionQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "cropadviser:predictions"
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "workers"
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	block := cfg.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	claimIdle := cfg.ClaimIdle
	if claimIdle <= 0 {
		claimIdle = 30 * time.Second
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &PredictionQueue{
		client:       redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream:       stream,
		group:        group,
		consumerBase: uuid.NewString(),
		maxAttempts:  maxAttempts,
		block:        block,
		claimIdle:    claimIdle,
		maxLen:       maxLen,
	}, nil
}

// Enqueue schedules a prediction for processing.
func (q *PredictionQueue) Enqueue(ctx context.Context, predictionID uint) error {
	if predictionID == 0 {
		return errors.New("prediction id required")
	}
	return q.add(ctx, predictionID, 1)
}

func (q *PredictionQueue) add(ctx context.Context, predictionID uint, attempt int) error {
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"prediction_id": strconv.FormatUint(uint64(predictionID), 10),
			"attempt":       strconv.Itoa(attempt),
		},
	}).Err()
}

// Handler processes one prediction. A non-nil error triggers a retry until
// the attempt budget is spent; the final failure is the handler's to record.
type Handler func(ctx context.Context, predictionID uint, lastAttempt bool) error

// Start launches worker goroutines that consume until ctx is cancelled.
func (q *PredictionQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consume(ctx, consumer, handler)
	}
}

func (q *PredictionQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Warn("create consumer group", "stream", q.stream, "err", err)
		}
	})
}

func (q *PredictionQueue) consume(ctx context.Context, consumer string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Recover messages abandoned by dead consumers first.
		if claimed, err := q.claimStale(ctx, consumer); err == nil {
			for _, msg := range claimed {
				q.process(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    10,
			Block:    q.block,
		}).Result()
		if err != nil {
			if err == redis.Nil || errors.Is(err, context.Canceled) {
				continue
			}
			slog.Warn("read prediction stream", "err", err)
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.process(ctx, msg, handler)
			}
		}
	}
}

func (q *PredictionQueue) claimStale(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    10,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return msgs, err
}

func (q *PredictionQueue) process(ctx context.Context, msg redis.XMessage, handler Handler) {
	predictionID, attempt := decodeMessage(msg)
	if predictionID == 0 {
		q.ack(ctx, msg.ID)
		return
	}
	lastAttempt := attempt >= q.maxAttempts
	err := handler(ctx, predictionID, lastAttempt)
	if err == nil || lastAttempt {
		if err != nil {
			slog.Warn("prediction job exhausted retries", "prediction_id", predictionID, "attempts", attempt, "err", err)
		}
		q.ack(ctx, msg.ID)
		return
	}
	slog.Warn("prediction job failed, requeueing", "prediction_id", predictionID, "attempt", attempt, "err", err)
	if reErr := q.add(ctx, predictionID, attempt+1); reErr != nil {
		slog.Error("requeue prediction job", "prediction_id", predictionID, "err", reErr)
	}
	q.ack(ctx, msg.ID)
}

func (q *PredictionQueue) ack(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func decodeMessage(msg redis.XMessage) (uint, int) {
	rawID, _ := msg.Values["prediction_id"].(string)
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return 0, 0
	}
	attempt := 1
	if rawAttempt, ok := msg.Values["attempt"].(string); ok {
		if n, err := strconv.Atoi(rawAttempt); err == nil && n > 0 {
			attempt = n
		}
	}
	return uint(id), attempt
}
