// Package repository 提供了数据访问层的实现。
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"mind-tutor-go/internal/model"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"
	"mind-tutor-go/pkg/log"
)

// MessageRepository 定义了消息记录在持久化存储中的 CRUD 操作。
// 所有调用都可能因存储不可用而失败；适配器不在内部重试。
type MessageRepository interface {
	// Create 持久化一条消息并返回存储分配的 ID。
	// 若消息没有时间戳，则以当前时间补齐。
	Create(ctx context.Context, message model.Message) (string, error)
	// GetByConversation 返回某会话的全部消息，按 timestamp 升序排序。
	// 空会话返回空切片而不是错误。
	GetByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	// GetByUser 返回某用户的全部消息，不保证顺序。
	GetByUser(ctx context.Context, userID uint) ([]model.Message, error)
	// GetByID 根据存储 ID 查找单条消息。
	GetByID(ctx context.Context, id string) (*model.Message, error)
	// Delete 删除单条消息，返回是否确实存在并被删除。
	Delete(ctx context.Context, id string) (bool, error)
	// DeleteByConversation 批量删除某会话的全部消息（会话删除的副作用）。
	DeleteByConversation(ctx context.Context, conversationID string) error
}

type esMessageRepository struct {
	client *elasticsearch.Client
	index  string
}

// NewMessageRepository 创建一个基于 Elasticsearch 的 MessageRepository 实例。
func NewMessageRepository(client *elasticsearch.Client, index string) MessageRepository {
	return &esMessageRepository{client: client, index: index}
}

// Create 将消息作为单个原子文档写入索引。
func (r *esMessageRepository) Create(ctx context.Context, message model.Message) (string, error) {
	id := uuid.NewString()
	doc := message.ToDoc(id)

	docBytes, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("序列化消息文档失败: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      r.index,
		DocumentID: id,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引消息文档到 Elasticsearch 出错: %s", res.String())
		return "", fmt.Errorf("%w: index request returned %s", ErrStoreUnavailable, res.Status())
	}

	return id, nil
}

// GetByConversation 检索并按 timestamp 升序返回某会话的消息。
// 时间戳相同的消息按写入顺序稳定排序。
func (r *esMessageRepository) GetByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"conversation_id": conversationID,
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"timestamp": map[string]interface{}{"order": "asc"}},
			map[string]interface{}{"_doc": map[string]interface{}{"order": "asc"}},
		},
		"size": 1000,
	}
	return r.search(ctx, query)
}

// GetByUser 检索某用户的全部消息，顺序由调用方自行整理。
func (r *esMessageRepository) GetByUser(ctx context.Context, userID uint) ([]model.Message, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"user_id": userID,
			},
		},
		"size": 1000,
	}
	return r.search(ctx, query)
}

// search 执行一次查询并把命中的文档还原为消息列表。
func (r *esMessageRepository) search(ctx context.Context, query map[string]interface{}) ([]model.Message, error) {
	queryBytes, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("序列化查询失败: %w", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.index),
		r.client.Search.WithBody(bytes.NewReader(queryBytes)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: search returned %s", ErrStoreUnavailable, res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source model.MessageDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("解析搜索响应失败: %w", err)
	}

	messages := make([]model.Message, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		messages = append(messages, hit.Source.ToMessage())
	}
	return messages, nil
}

// GetByID 按文档 ID 获取单条消息。
func (r *esMessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	req := esapi.GetRequest{
		Index:      r.index,
		DocumentID: id,
	}

	res, err := req.Do(ctx, r.client)
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
		Source model.MessageDoc `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("解析文档响应失败: %w", err)
	}
	msg := parsed.Source.ToMessage()
	return &msg, nil
}

// Delete 删除单条消息。文档不存在时返回 false 而不是错误。
func (r *esMessageRepository) Delete(ctx context.Context, id string) (bool, error) {
	req := esapi.DeleteRequest{
		Index:      r.index,
		DocumentID: id,
		Refresh:    "true",
	}

	res, err := req.Do(ctx, r.client)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return false, nil
	}
	if res.IsError() {
		return false, fmt.Errorf("%w: delete request returned %s", ErrStoreUnavailable, res.Status())
	}
	return true, nil
}

// DeleteByConversation 通过 delete-by-query 清空某会话的消息。
func (r *esMessageRepository) DeleteByConversation(ctx context.Context, conversationID string) error {
	query := fmt.Sprintf(`{"query":{"term":{"conversation_id":%q}}}`, conversationID)

	res, err := r.client.DeleteByQuery(
		[]string{r.index},
		strings.NewReader(query),
		r.client.DeleteByQuery.WithContext(ctx),
		r.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: delete by query returned %s", ErrStoreUnavailable, res.Status())
	}
	return nil
}
