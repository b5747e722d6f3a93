// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"mind-tutor-go/internal/service"
	"mind-tutor-go/pkg/log"
	"mind-tutor-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理 WebSocket 聊天连接。
type ChatHandler struct {
	chatService         service.ChatService
	conversationService service.ConversationService
	userService         service.UserService
	jwtManager          *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, conversationService service.ConversationService, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService:         chatService,
		conversationService: conversationService,
		userService:         userService,
		jwtManager:          jwtManager,
	}
}

// inboundMessage 是 WebSocket 上行消息：普通提问或停止指令。
type inboundMessage struct {
	Type    string `json:"type"` // "chat" | "stop"
	Content string `json:"content"`
}

// Handle 处理一个传入的 WebSocket 连接。
// 路径参数携带 JWT，查询参数 conversationId 指定会话。
func (h *ChatHandler) Handle(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	user, err := h.userService.GetProfile(claims.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	conversationID := c.Query("conversationId")
	conversation, err := h.conversationService.Get(c.Request.Context(), user.ID, conversationID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "会话不存在或无权访问", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s, 会话: %s", claims.Username, conversationID)

	// 每连接一个停止标志，收到 stop 指令时置位
	var stopped atomic.Bool

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var inbound inboundMessage
		if err := json.Unmarshal(raw, &inbound); err != nil {
			// 纯文本消息按提问处理
			inbound = inboundMessage{Type: "chat", Content: string(raw)}
		}

		if inbound.Type == "stop" {
			stopped.Store(true)
			resp := map[string]interface{}{
				"type":      "stop",
				"message":   "响应已停止",
				"timestamp": time.Now().UnixMilli(),
			}
			b, _ := json.Marshal(resp)
			_ = conn.WriteMessage(websocket.TextMessage, b)
			continue
		}

		if inbound.Content == "" {
			continue
		}

		stopped.Store(false)
		err = h.chatService.StreamResponse(c.Request.Context(), conversation, user, inbound.Content, conn, func() bool {
			return stopped.Load()
		})
		if err != nil {
			log.Errorf("处理聊天消息失败: %v", err)
			errMsg := map[string]interface{}{
				"type":    "error",
				"message": "生成回答失败，请稍后重试",
			}
			b, _ := json.Marshal(errMsg)
			_ = conn.WriteMessage(websocket.TextMessage, b)
		}
	}
}
