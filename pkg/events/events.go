// Package events 定义了通过 Kafka 传递的学习活动事件。
// 独立成包以避免 kafka 包与业务层之间的循环依赖。
package events

import "time"

// 活动事件类型。
const (
	TypeMessageSaved  = "message_saved"
	TypeQuizCompleted = "quiz_completed"
)

// ActivityEvent 代表一条用户学习活动事件。
// 由业务层发布到 Kafka，由分析消费者聚合进 MySQL。
type ActivityEvent struct {
	Type           string    `json:"type"`
	UserID         uint      `json:"userId"`
	ConversationID string    `json:"conversationId,omitempty"`
	Score          int       `json:"score,omitempty"`
	Total          int       `json:"total,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}
