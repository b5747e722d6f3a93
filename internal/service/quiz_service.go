// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mind-tutor-go/internal/config"
	"mind-tutor-go/internal/model"
	"mind-tutor-go/internal/repository"
	"mind-tutor-go/pkg/events"
	"mind-tutor-go/pkg/kafka"
	"mind-tutor-go/pkg/llm"
	"mind-tutor-go/pkg/log"

	"github.com/google/uuid"
)

const quizSystemPrompt = `You are a quiz generator. Respond with a JSON object of the shape
{"questions":[{"question":"...","options":["...","...","...","..."],"answer":0}]}
where "answer" is the index of the correct option. Do not include any other keys.`

// QuizService 定义了测验生成与结果记录的业务接口。
// 判分本身发生在客户端，提交进来的结果已经带分数。
type QuizService interface {
	Generate(ctx context.Context, userID uint, conversationID, topic string, questionCount int) (*model.QuizDoc, error)
	SubmitResult(ctx context.Context, userID uint, quizID string, score, total int) (*model.QuizResult, error)
	ListResults(ctx context.Context, userID uint) ([]model.QuizResult, error)
}

type quizService struct {
	llmClient llm.Client
	quizRepo  repository.QuizRepository
}

// NewQuizService 创建一个新的 QuizService 实例。
func NewQuizService(llmClient llm.Client, quizRepo repository.QuizRepository) QuizService {
	return &quizService{
		llmClient: llmClient,
		quizRepo:  quizRepo,
	}
}

// clampQuestionCount 将题目数量限制在配置的上下界内。
func clampQuestionCount(n int) int {
	minQ := config.Conf.Quiz.MinQuestions
	if minQ <= 0 {
		minQ = 3
	}
	maxQ := config.Conf.Quiz.MaxQuestions
	if maxQ <= 0 {
		maxQ = 10
	}
	if n < minQ {
		return minQ
	}
	if n > maxQ {
		return maxQ
	}
	return n
}

// Generate 调用 LLM 生成一份测验并持久化到 Elasticsearch。
func (s *quizService) Generate(ctx context.Context, userID uint, conversationID, topic string, questionCount int) (*model.QuizDoc, error) {
	questionCount = clampQuestionCount(questionCount)

	userPrompt := fmt.Sprintf("Generate %d multiple-choice questions about %q.", questionCount, topic)
	raw, err := s.llmClient.CompleteJSON(ctx, quizSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("生成测验失败: %w", err)
	}

	var parsed struct {
		Questions []model.QuizQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("解析测验 JSON 失败: %w", err)
	}
	if len(parsed.Questions) == 0 {
		return nil, errors.New("模型未返回任何题目")
	}

	quiz := model.QuizDoc{
		QuizID:         uuid.NewString(),
		ConversationID: conversationID,
		UserID:         userID,
		Topic:          topic,
		Questions:      parsed.Questions,
		CreatedAt:      time.Now(),
	}
	if err := s.quizRepo.SaveQuiz(ctx, quiz); err != nil {
		return nil, fmt.Errorf("保存测验失败: %w", err)
	}
	return &quiz, nil
}

// SubmitResult 记录一次已判分的测验结果并发布活动事件。
func (s *quizService) SubmitResult(ctx context.Context, userID uint, quizID string, score, total int) (*model.QuizResult, error) {
	if total <= 0 || score < 0 || score > total {
		return nil, errors.New("非法的测验分数")
	}

	quiz, err := s.quizRepo.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("查找测验失败: %w", err)
	}
	if quiz.UserID != userID {
		return nil, errors.New("测验不属于当前用户")
	}

	result := &model.QuizResult{
		QuizID:         quizID,
		ConversationID: quiz.ConversationID,
		UserID:         userID,
		Topic:          quiz.Topic,
		Score:          score,
		Total:          total,
	}
	if err := s.quizRepo.SaveResult(result); err != nil {
		return nil, fmt.Errorf("保存测验结果失败: %w", err)
	}

	if pubErr := kafka.PublishActivity(events.ActivityEvent{
		Type:           events.TypeQuizCompleted,
		UserID:         userID,
		ConversationID: quiz.ConversationID,
		Score:          score,
		Total:          total,
		OccurredAt:     time.Now(),
	}); pubErr != nil {
		log.Warnf("发布测验活动事件失败: %v", pubErr)
	}

	return result, nil
}

// ListResults 返回某用户的全部测验结果。
func (s *quizService) ListResults(_ context.Context, userID uint) ([]model.QuizResult, error) {
	return s.quizRepo.FindResultsByUser(userID)
}
