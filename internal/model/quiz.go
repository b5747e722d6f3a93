// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// QuizQuestion 代表一道由 LLM 生成的选择题。
type QuizQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   int      `json:"answer"` // 正确选项在 Options 中的下标
}

// QuizDoc 代表存储在 Elasticsearch 测验索引中的文档结构。
type QuizDoc struct {
	QuizID         string         `json:"quiz_id"`
	ConversationID string         `json:"conversation_id"`
	UserID         uint           `json:"user_id"`
	Topic          string         `json:"topic"`
	Questions      []QuizQuestion `json:"questions"`
	CreatedAt      time.Time      `json:"created_at"`
}

// QuizResult 对应于数据库中的 'quiz_results' 表。
// 结果在提交时已由调用方完成判分，这里只做持久化与统计。
type QuizResult struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	QuizID         string    `gorm:"type:varchar(36);index;not null" json:"quizId"`
	ConversationID string    `gorm:"type:varchar(36);index" json:"conversationId"`
	UserID         uint      `gorm:"index;not null" json:"userId"`
	Topic          string    `gorm:"type:varchar(255)" json:"topic"`
	Score          int       `gorm:"not null" json:"score"`
	Total          int       `gorm:"not null" json:"total"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (QuizResult) TableName() string {
	return "quiz_results"
}
