// Package model 包含了应用的数据模型定义。
package model

import "time"

// 消息角色常量。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// 客户端消息状态常量（仅用于驱动 UI 反馈，不落库）。
const (
	StatusSending = "sending"
	StatusSent    = "sent"
	StatusError   = "error"
)

// Message 代表一次会话中的单条消息。
// ID 由存储层在创建时分配；尚未持久化的客户端消息没有 ID。
type Message struct {
	ID             string    `json:"id,omitempty"`
	ConversationID string    `json:"conversationId"`
	UserID         uint      `json:"userId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`

	// Status 与 DoNotPersist 仅存在于客户端侧，绝不写入存储。
	Status       string `json:"status,omitempty"`
	DoNotPersist bool   `json:"doNotPersist,omitempty"`
}

// MessageDoc 代表存储在 Elasticsearch 消息索引中的文档结构。
// 客户端专用字段（status/doNotPersist）在转换时被剥离。
type MessageDoc struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	UserID         uint      `json:"user_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// ToDoc 将消息转换为可持久化的 Elasticsearch 文档。
func (m Message) ToDoc(id string) MessageDoc {
	return MessageDoc{
		MessageID:      id,
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Role:           m.Role,
		Content:        m.Content,
		Timestamp:      m.Timestamp,
	}
}

// ToMessage 将 Elasticsearch 文档还原为消息。
func (d MessageDoc) ToMessage() Message {
	return Message{
		ID:             d.MessageID,
		ConversationID: d.ConversationID,
		UserID:         d.UserID,
		Role:           d.Role,
		Content:        d.Content,
		Timestamp:      d.Timestamp,
	}
}
