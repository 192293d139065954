package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypePDFGenerate     = "pdf:generate"
	TypeTemplatePreview = "template:preview"
)

// PDFGeneratePayload 描述异步生成 PDF 所需的最小信息。
type PDFGeneratePayload struct {
	DocumentID    uint   `json:"document_id"`
	UserID        uint   `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
}

// TemplatePreviewPayload 描述模板缩略图任务。
type TemplatePreviewPayload struct {
	TemplateKey   string `json:"template_key"`
	CorrelationID string `json:"correlation_id"`
}

// NewPDFGenerateTask 构造一个新的 PDF 生成任务。
func NewPDFGenerateTask(documentID, userID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(PDFGeneratePayload{
		DocumentID:    documentID,
		UserID:        userID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePDFGenerate, payload), nil
}

// NewTemplatePreviewTask 构造模板缩略图任务。
func NewTemplatePreviewTask(templateKey, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(TemplatePreviewPayload{
		TemplateKey:   templateKey,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTemplatePreview, payload), nil
}

// UserNotifyChannel 返回用户通知的 Redis Pub/Sub 频道，WebSocket 连接订阅该频道。
func UserNotifyChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}
