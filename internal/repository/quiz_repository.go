// Package repository 提供了数据访问层的实现。
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"mind-tutor-go/internal/model"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"gorm.io/gorm"
)

// QuizRepository 定义了测验文档与测验结果的持久化操作。
// 测验文档存储在 Elasticsearch 中，提交的结果记录在 MySQL 中。
type QuizRepository interface {
	SaveQuiz(ctx context.Context, quiz model.QuizDoc) error
	GetQuiz(ctx context.Context, quizID string) (*model.QuizDoc, error)
	SaveResult(result *model.QuizResult) error
	FindResultsByUser(userID uint) ([]model.QuizResult, error)
}

type quizRepository struct {
	esClient *elasticsearch.Client
	index    string
	db       *gorm.DB
}

// NewQuizRepository 创建一个新的 QuizRepository 实例。
func NewQuizRepository(esClient *elasticsearch.Client, index string, db *gorm.DB) QuizRepository {
	return &quizRepository{esClient: esClient, index: index, db: db}
}

// SaveQuiz 将生成的测验文档写入 Elasticsearch。
func (r *quizRepository) SaveQuiz(ctx context.Context, quiz model.QuizDoc) error {
	docBytes, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("序列化测验文档失败: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      r.index,
		DocumentID: quiz.QuizID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, r.esClient)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: index request returned %s", ErrStoreUnavailable, res.Status())
	}
	return nil
}

// GetQuiz 按 ID 获取测验文档。
func (r *quizRepository) GetQuiz(ctx context.Context, quizID string) (*model.QuizDoc, error) {
	req := esapi.GetRequest{
		Index:      r.index,
		DocumentID: quizID,
	}

	res, err := req.Do(ctx, r.esClient)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, ErrNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("%w: get request returned %s", ErrStoreUnavailable, res.Status())
	}

	var parsed struct {
		Source model.QuizDoc `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("解析测验文档失败: %w", err)
	}
	return &parsed.Source, nil
}

// SaveResult 将一条已判分的测验结果写入 MySQL。
func (r *quizRepository) SaveResult(result *model.QuizResult) error {
	return r.db.Create(result).Error
}

// FindResultsByUser 返回某用户的全部测验结果，最近的在前。
func (r *quizRepository) FindResultsByUser(userID uint) ([]model.QuizResult, error) {
	var results []model.QuizResult
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&results).Error
	return results, err
}
