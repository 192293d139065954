package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"cvStudio/internal/tasks"
)

// NotifyMessage 是通过 Redis Pub/Sub 转发给前端 WebSocket 的任务通知。
// 字段名与前端解析保持一致。
type NotifyMessage struct {
	Type          string `json:"type"`
	Status        string `json:"status"`
	DocumentID    uint   `json:"document_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message,omitempty"`
	Pages         int    `json:"pages,omitempty"`
}

// Publisher 是 *redis.Client 的发布能力。
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

func publishUserNotify(ctx context.Context, pub Publisher, userID uint, msg NotifyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := tasks.UserNotifyChannel(userID)
	if err := pub.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
