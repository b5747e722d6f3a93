// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"time"

	"mind-tutor-go/internal/model"
	"mind-tutor-go/internal/service"

	"github.com/gin-gonic/gin"
)

// SyncHandler 暴露消息同步协议的 HTTP 接口。
type SyncHandler struct {
	syncService         service.SyncService
	conversationService service.ConversationService
}

// NewSyncHandler 创建一个新的 SyncHandler。
func NewSyncHandler(syncService service.SyncService, conversationService service.ConversationService) *SyncHandler {
	return &SyncHandler{
		syncService:         syncService,
		conversationService: conversationService,
	}
}

// wireMessage 是消息在 HTTP 线路上的形态。
// timestamp 使用 RFC3339：输入时可省略（服务端补当前时间），输出时始终存在。
type wireMessage struct {
	ID           string     `json:"id,omitempty"`
	Role         string     `json:"role" binding:"required,oneof=user assistant system"`
	Content      string     `json:"content" binding:"required"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
	DoNotPersist bool       `json:"doNotPersist,omitempty"`
}

// saveRequest 是保存批次的请求体。messages 缺失或不是数组都会触发 400。
type saveRequest struct {
	Messages *[]wireMessage `json:"messages" binding:"required,dive"`
}

// outcomeDTO 是单条消息的保存结果。
type outcomeDTO struct {
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

func toModelMessage(conversationID string, userID uint, w wireMessage) model.Message {
	msg := model.Message{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           w.Role,
		Content:        w.Content,
		DoNotPersist:   w.DoNotPersist,
	}
	if w.Timestamp != nil {
		msg.Timestamp = *w.Timestamp
	}
	return msg
}

func toWireMessage(m model.Message) wireMessage {
	ts := m.Timestamp
	return wireMessage{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: &ts,
	}
}

// ownedConversation 校验路径中的会话存在且属于当前用户。
func (h *SyncHandler) ownedConversation(c *gin.Context) (string, bool) {
	conversationID := c.Param("conversationId")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少 conversationId", "data": nil})
		return "", false
	}

	user := c.MustGet("user").(*model.User)
	if _, err := h.conversationService.Get(c.Request.Context(), user.ID, conversationID); err != nil {
		if errors.Is(err, service.ErrConversationNotOwned) {
			c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "无权访问该会话", "data": nil})
			return "", false
		}
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在", "data": nil})
		return "", false
	}
	return conversationID, true
}

// Save 处理 POST /sync/:conversationId。
// 请求体中的消息批次先经过去重过滤再持久化，逐条返回结果；
// 单条失败不影响其他消息，整批失败时返回 500。
func (h *SyncHandler) Save(c *gin.Context) {
	conversationID, ok := h.ownedConversation(c)
	if !ok {
		return
	}

	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "请求格式错误: " + err.Error(), "data": nil})
		return
	}

	user := c.MustGet("user").(*model.User)
	candidates := make([]model.Message, 0, len(*req.Messages))
	for _, w := range *req.Messages {
		candidates = append(candidates, toModelMessage(conversationID, user.ID, w))
	}

	outcomes, err := h.syncService.Save(c.Request.Context(), conversationID, user.ID, candidates)
	results := make([]outcomeDTO, 0, len(outcomes))
	for _, o := range outcomes {
		dto := outcomeDTO{
			ID:        o.ID,
			Role:      o.Message.Role,
			Content:   o.Message.Content,
			Timestamp: o.Message.Timestamp,
			Success:   o.Err == nil,
		}
		if o.Err != nil {
			dto.Error = o.Err.Error()
		}
		results = append(results, dto)
	}

	if err != nil {
		// 整批失败才视为错误；部分失败通过逐条结果表达
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "消息保存失败",
			"data":    gin.H{"success": false, "perMessageResults": results},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"success": true, "perMessageResults": results},
	})
}

// Load 处理 GET /sync/:conversationId。
// 存储短暂不可用时返回镜像缓存数据并标记 stale；
// 重试耗尽且无镜像可用时返回 500。
func (h *SyncHandler) Load(c *gin.Context) {
	conversationID, ok := h.ownedConversation(c)
	if !ok {
		return
	}

	result, err := h.syncService.Load(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "消息加载失败",
			"data":    nil,
		})
		return
	}

	messages := make([]wireMessage, 0, len(result.Messages))
	for _, m := range result.Messages {
		messages = append(messages, toWireMessage(m))
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"success": true, "messages": messages, "stale": result.Stale},
	})
}
