// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mind-tutor-go/internal/model"
	"mind-tutor-go/internal/repository"
	"mind-tutor-go/pkg/log"

	"github.com/google/uuid"
)

// ErrConversationNotOwned 表示会话不属于当前用户。
var ErrConversationNotOwned = errors.New("conversation does not belong to user")

// ConversationService 定义了会话生命周期的业务逻辑。
type ConversationService interface {
	// Create 创建一个新会话并返回本地合成的欢迎消息。
	// 欢迎消息带有 doNotPersist 标记，只用于客户端展示，永不落库。
	Create(ctx context.Context, userID uint, topic, mode string) (*model.Conversation, model.Message, error)
	ListByUser(ctx context.Context, userID uint) ([]model.Conversation, error)
	Get(ctx context.Context, userID uint, conversationID string) (*model.Conversation, error)
	// Delete 删除会话及其全部消息，并丢弃镜像缓存。
	Delete(ctx context.Context, userID uint, conversationID string) error
}

type conversationService struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	cache            repository.LocalCache
}

// NewConversationService 创建一个新的 ConversationService 实例。
func NewConversationService(conversationRepo repository.ConversationRepository, messageRepo repository.MessageRepository, cache repository.LocalCache) ConversationService {
	return &conversationService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		cache:            cache,
	}
}

// Create 创建会话元数据并合成欢迎消息。
func (s *conversationService) Create(ctx context.Context, userID uint, topic, mode string) (*model.Conversation, model.Message, error) {
	if mode == "" {
		mode = model.ModeChat
	}

	conversation := &model.Conversation{
		ID:     uuid.NewString(),
		UserID: userID,
		Topic:  topic,
		Mode:   mode,
	}
	if err := s.conversationRepo.Create(conversation); err != nil {
		return nil, model.Message{}, fmt.Errorf("创建会话失败: %w", err)
	}

	welcome := model.Message{
		ConversationID: conversation.ID,
		UserID:         userID,
		Role:           model.RoleAssistant,
		Content:        WelcomeMessage(mode, topic),
		Timestamp:      time.Now(),
		Status:         model.StatusSent,
		DoNotPersist:   true,
	}
	return conversation, welcome, nil
}

// ListByUser 返回某用户的全部会话。
func (s *conversationService) ListByUser(_ context.Context, userID uint) ([]model.Conversation, error) {
	return s.conversationRepo.FindByUser(userID)
}

// Get 返回某会话，并校验归属。
func (s *conversationService) Get(_ context.Context, userID uint, conversationID string) (*model.Conversation, error) {
	conversation, err := s.conversationRepo.FindByID(conversationID)
	if err != nil {
		return nil, err
	}
	if conversation.UserID != userID {
		return nil, ErrConversationNotOwned
	}
	return conversation, nil
}

// Delete 删除会话元数据，并以副作用批量删除消息与镜像。
func (s *conversationService) Delete(ctx context.Context, userID uint, conversationID string) error {
	if _, err := s.Get(ctx, userID, conversationID); err != nil {
		return err
	}

	if err := s.conversationRepo.Delete(conversationID); err != nil {
		return fmt.Errorf("删除会话失败: %w", err)
	}

	// 消息删除失败不回滚会话删除，只记录日志等待后台清理
	if err := s.messageRepo.DeleteByConversation(ctx, conversationID); err != nil {
		log.Errorf("删除会话消息失败: conversationID=%s, err=%v", conversationID, err)
	}
	s.cache.Invalidate(ctx, conversationID)
	return nil
}
