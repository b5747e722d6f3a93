// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// UserActivityStat 对应于数据库中的 'user_activity_stats' 表。
// 由 Kafka 活动事件消费者异步维护，每个用户一行。
type UserActivityStat struct {
	UserID         uint      `gorm:"primaryKey" json:"userId"`
	MessagesSent   int64     `gorm:"not null;default:0" json:"messagesSent"`
	QuizzesTaken   int64     `gorm:"not null;default:0" json:"quizzesTaken"`
	QuizScoreSum   int64     `gorm:"not null;default:0" json:"-"`
	QuizScoreCount int64     `gorm:"not null;default:0" json:"-"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (UserActivityStat) TableName() string {
	return "user_activity_stats"
}

// AverageScore 返回百分制平均得分（答对题数/总题数），没有记录时为 0。
func (s UserActivityStat) AverageScore() float64 {
	if s.QuizScoreCount == 0 {
		return 0
	}
	return 100 * float64(s.QuizScoreSum) / float64(s.QuizScoreCount)
}

// ActivitySummaryDTO 定义了返回给前端的学习统计结构。
type ActivitySummaryDTO struct {
	MessagesSent int64   `json:"messagesSent"`
	QuizzesTaken int64   `json:"quizzesTaken"`
	AverageScore float64 `json:"averageScore"`
}
