// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"

	"mind-tutor-go/internal/model"
	"mind-tutor-go/internal/repository"
	"mind-tutor-go/pkg/events"
)

// AnalyticsService 聚合用户学习活动统计。
// 它同时充当 Kafka 活动事件的消费端处理器（kafka.EventProcessor）。
type AnalyticsService interface {
	Process(ctx context.Context, event events.ActivityEvent) error
	Summary(ctx context.Context, userID uint) (*model.ActivitySummaryDTO, error)
}

type analyticsService struct {
	statRepo repository.StatRepository
}

// NewAnalyticsService 创建一个新的 AnalyticsService 实例。
func NewAnalyticsService(statRepo repository.StatRepository) AnalyticsService {
	return &analyticsService{statRepo: statRepo}
}

// Process 将一条活动事件折算进统计行。
// 未知的事件类型直接忽略，保证消费端对新事件前向兼容。
func (s *analyticsService) Process(_ context.Context, event events.ActivityEvent) error {
	switch event.Type {
	case events.TypeMessageSaved:
		return s.statRepo.IncrMessages(event.UserID, 1)
	case events.TypeQuizCompleted:
		return s.statRepo.RecordQuiz(event.UserID, int64(event.Score), int64(event.Total))
	default:
		return nil
	}
}

// Summary 返回某用户的学习统计摘要。
func (s *analyticsService) Summary(_ context.Context, userID uint) (*model.ActivitySummaryDTO, error) {
	stat, err := s.statRepo.Find(userID)
	if err != nil {
		return nil, fmt.Errorf("查询学习统计失败: %w", err)
	}
	return &model.ActivitySummaryDTO{
		MessagesSent: stat.MessagesSent,
		QuizzesTaken: stat.QuizzesTaken,
		AverageScore: stat.AverageScore(),
	}, nil
}
