// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 会话模式常量：聊天、测验、思维导图。
const (
	ModeChat    = "chat"
	ModeQuiz    = "quiz"
	ModeMindmap = "mindmap"
)

// Conversation 对应于数据库中的 'conversations' 表。
// 消息本身存储在 Elasticsearch 中，这里只保存会话的元数据。
type Conversation struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"userId"`
	Topic     string    `gorm:"type:varchar(255);not null" json:"topic"`
	Mode      string    `gorm:"type:varchar(16);not null;default:chat" json:"mode"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Conversation) TableName() string {
	return "conversations"
}
