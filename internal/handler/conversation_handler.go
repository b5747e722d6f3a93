// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"mind-tutor-go/internal/model"
	"mind-tutor-go/internal/service"
	"mind-tutor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与会话相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// CreateConversationRequest 定义了创建会话 API 的请求体结构。
type CreateConversationRequest struct {
	Topic string `json:"topic" binding:"required"`
	Mode  string `json:"mode" binding:"omitempty,oneof=chat quiz mindmap"`
}

// Create 处理创建会话的请求，返回会话元数据与本地欢迎消息。
func (h *ConversationHandler) Create(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：topic 不能为空",
		})
		return
	}

	user := c.MustGet("user").(*model.User)
	conversation, welcome, err := h.service.Create(c.Request.Context(), user.ID, req.Topic, req.Mode)
	if err != nil {
		log.Errorf("创建会话失败: userID=%d, err=%v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "创建会话失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"conversation":   conversation,
			"welcomeMessage": welcome,
		},
	})
}

// List 返回当前用户的全部会话。
func (h *ConversationHandler) List(c *gin.Context) {
	user := c.MustGet("user").(*model.User)

	conversations, err := h.service.ListByUser(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "Failed to retrieve conversations",
			"data":    nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    conversations,
	})
}

// Delete 删除一个会话及其全部消息。
func (h *ConversationHandler) Delete(c *gin.Context) {
	user := c.MustGet("user").(*model.User)
	conversationID := c.Param("conversationId")

	err := h.service.Delete(c.Request.Context(), user.ID, conversationID)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotOwned) {
			c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "无权删除该会话"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
	})
}
