package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultTTL - 배치 진행 정보 보관 시간
const DefaultTTL = time.Hour

// ErrNotFound - 해당 배치 진행 정보 없음 (만료 포함)
var ErrNotFound = errors.New("batch progress not found")

// Status - 배치 단계
type Status string

const (
	StatusLoading     Status = "loading"
	StatusAdapting    Status = "adapting"
	StatusDispatching Status = "dispatching"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// 이미지 결과 종류
const (
	OutcomeStored = "stored"
	OutcomeInline = "inline"
	OutcomeError  = "error"
)

// ImageSummary - 요청 1건의 결과 요약 (inline payload 제외)
type ImageSummary struct {
	Index     int    `json:"index"`
	Provider  string `json:"provider"`
	Outcome   string `json:"outcome"`
	FileID    string `json:"fileId,omitempty"`
	URL       string `json:"url,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// Snapshot - 배치 진행 상황
type Snapshot struct {
	BatchID   string         `json:"batchId"`
	Status    Status         `json:"status"`
	Total     int            `json:"total"`
	Completed int            `json:"completed"`
	Failed    int            `json:"failed"`
	Degraded  int            `json:"degraded"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Images    []ImageSummary `json:"images"`
}

// Event - pub/sub 으로 전달되는 진행 이벤트
type Event struct {
	BatchID string        `json:"batchId"`
	Type    string        `json:"type"` // "status" | "image"
	Status  Status        `json:"status,omitempty"`
	Image   *ImageSummary `json:"image,omitempty"`
	At      time.Time     `json:"at"`
}

// Tracker - Redis 기반 진행 상황 기록기 (nil 리시버면 아무것도 안 함)
type Tracker struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker - ttl 0 이하면 1시간
func NewTracker(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{rdb: rdb, ttl: ttl, logger: logger.Named("progress"), now: time.Now}
}

func batchKey(batchID string) string   { return "regen:batch:" + batchID }
func imagesKey(batchID string) string  { return "regen:batch:" + batchID + ":images" }
func channelKey(batchID string) string { return "regen:progress:" + batchID }

// Start - 배치 진행 정보 초기화
func (t *Tracker) Start(ctx context.Context, batchID string, total int) {
	if t == nil {
		return
	}
	now := t.now()

	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, batchKey(batchID), imagesKey(batchID))
		pipe.HSet(ctx, batchKey(batchID), map[string]interface{}{
			"status":    string(StatusLoading),
			"total":     total,
			"completed": 0,
			"failed":    0,
			"degraded":  0,
			"updatedAt": now.Format(time.RFC3339Nano),
		})
		pipe.Expire(ctx, batchKey(batchID), t.ttl)
		return nil
	})
	if err != nil {
		t.logger.Warn("⚠️  Failed to initialize batch progress", zap.String("batchId", batchID), zap.Error(err))
		return
	}
	t.publish(ctx, Event{BatchID: batchID, Type: "status", Status: StatusLoading, At: now})
}

// SetStatus - 배치 단계 변경
func (t *Tracker) SetStatus(ctx context.Context, batchID string, status Status) {
	if t == nil {
		return
	}
	now := t.now()

	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, batchKey(batchID), "status", string(status), "updatedAt", now.Format(time.RFC3339Nano))
		pipe.Expire(ctx, batchKey(batchID), t.ttl)
		return nil
	})
	if err != nil {
		t.logger.Warn("⚠️  Failed to update batch status", zap.String("batchId", batchID), zap.Error(err))
		return
	}
	t.publish(ctx, Event{BatchID: batchID, Type: "status", Status: status, At: now})
}

// RecordImage - 요청 1건 결과 기록 및 카운터 증가
func (t *Tracker) RecordImage(ctx context.Context, batchID string, summary ImageSummary) {
	if t == nil {
		return
	}
	now := t.now()

	payload, err := json.Marshal(summary)
	if err != nil {
		t.logger.Warn("⚠️  Failed to encode image summary", zap.Error(err))
		return
	}

	_, err = t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, imagesKey(batchID), strconv.Itoa(summary.Index), payload)
		switch summary.Outcome {
		case OutcomeError:
			pipe.HIncrBy(ctx, batchKey(batchID), "failed", 1)
		case OutcomeInline:
			pipe.HIncrBy(ctx, batchKey(batchID), "completed", 1)
			pipe.HIncrBy(ctx, batchKey(batchID), "degraded", 1)
		default:
			pipe.HIncrBy(ctx, batchKey(batchID), "completed", 1)
		}
		pipe.HSet(ctx, batchKey(batchID), "updatedAt", now.Format(time.RFC3339Nano))
		pipe.Expire(ctx, batchKey(batchID), t.ttl)
		pipe.Expire(ctx, imagesKey(batchID), t.ttl)
		return nil
	})
	if err != nil {
		t.logger.Warn("⚠️  Failed to record image progress",
			zap.String("batchId", batchID), zap.Int("index", summary.Index), zap.Error(err))
		return
	}
	t.publish(ctx, Event{BatchID: batchID, Type: "image", Image: &summary, At: now})
}

// Snapshot - 현재 진행 상황 조회
func (t *Tracker) Snapshot(ctx context.Context, batchID string) (*Snapshot, error) {
	if t == nil {
		return nil, ErrNotFound
	}

	fields, err := t.rdb.HGetAll(ctx, batchKey(batchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read batch progress: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	snap := &Snapshot{
		BatchID:   batchID,
		Status:    Status(fields["status"]),
		Total:     atoi(fields["total"]),
		Completed: atoi(fields["completed"]),
		Failed:    atoi(fields["failed"]),
		Degraded:  atoi(fields["degraded"]),
		Images:    []ImageSummary{},
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["updatedAt"]); err == nil {
		snap.UpdatedAt = ts
	}

	images, err := t.rdb.HGetAll(ctx, imagesKey(batchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read batch images: %w", err)
	}
	for _, raw := range images {
		var summary ImageSummary
		if err := json.Unmarshal([]byte(raw), &summary); err != nil {
			continue
		}
		snap.Images = append(snap.Images, summary)
	}
	sortByIndex(snap.Images)

	return snap, nil
}

// Subscribe - 배치 이벤트 구독. 반환된 close 함수로 해제
func (t *Tracker) Subscribe(ctx context.Context, batchID string) (<-chan Event, func() error, error) {
	if t == nil {
		return nil, nil, ErrNotFound
	}

	pubsub := t.rdb.Subscribe(ctx, channelKey(batchID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, pubsub.Close, nil
}

func (t *Tracker) publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := t.rdb.Publish(ctx, channelKey(event.BatchID), payload).Err(); err != nil {
		t.logger.Warn("⚠️  Failed to publish progress event", zap.String("batchId", event.BatchID), zap.Error(err))
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func sortByIndex(images []ImageSummary) {
	sort.Slice(images, func(i, j int) bool { return images[i].Index < images[j].Index })
}
