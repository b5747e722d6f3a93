// Package repository 提供了数据访问层的实现。
package repository

import (
	"mind-tutor-go/internal/model"

	"gorm.io/gorm"
)

// ConversationRepository 定义了会话元数据的持久化操作。
// 消息内容不在这里：消息存储在 Elasticsearch 中，由 MessageRepository 负责。
type ConversationRepository interface {
	Create(conversation *model.Conversation) error
	FindByID(id string) (*model.Conversation, error)
	FindByUser(userID uint) ([]model.Conversation, error)
	Delete(id string) error
}

// conversationRepository 是 ConversationRepository 接口的 GORM 实现。
type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// Create 在数据库中创建一个新的会话记录。
func (r *conversationRepository) Create(conversation *model.Conversation) error {
	return r.db.Create(conversation).Error
}

// FindByID 根据会话 ID 查找会话。
func (r *conversationRepository) FindByID(id string) (*model.Conversation, error) {
	var conversation model.Conversation
	err := r.db.Where("id = ?", id).First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// FindByUser 返回某用户的全部会话，最近创建的在前。
func (r *conversationRepository) FindByUser(userID uint) ([]model.Conversation, error) {
	var conversations []model.Conversation
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&conversations).Error
	return conversations, err
}

// Delete 删除一个会话记录。
func (r *conversationRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.Conversation{}).Error
}
