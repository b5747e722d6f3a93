// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mind-tutor-go/internal/model"
	"mind-tutor-go/pkg/events"
	"mind-tutor-go/pkg/kafka"
	"mind-tutor-go/pkg/llm"
	"mind-tutor-go/pkg/log"

	"github.com/gorilla/websocket"
)

// ChatService 定义了流式聊天的业务接口。
type ChatService interface {
	// StreamResponse 处理一轮问答：加载历史、流式生成回答，
	// 并把用户消息与完整回答经同步协调器持久化。
	StreamResponse(ctx context.Context, conversation *model.Conversation, user *model.User, query string, ws *websocket.Conn, shouldStop func() bool) error
}

type chatService struct {
	llmClient   llm.Client
	syncService SyncService
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(llmClient llm.Client, syncService SyncService) ChatService {
	return &chatService{
		llmClient:   llmClient,
		syncService: syncService,
	}
}

// historyWindow 限制送入模型的历史消息条数。
const historyWindow = 20

// StreamResponse 协调一轮聊天并流式传输 LLM 响应。
func (s *chatService) StreamResponse(ctx context.Context, conversation *model.Conversation, user *model.User, query string, ws *websocket.Conn, shouldStop func() bool) error {
	// 1. 经同步协调器加载历史；存储短暂不可用时拿到的可能是镜像数据，
	//    聊天在降级模式下依然可用
	loaded, err := s.syncService.Load(ctx, conversation.ID)
	if err != nil {
		log.Errorf("加载会话历史失败，以空历史继续: conversationID=%s, err=%v", conversation.ID, err)
		loaded = LoadResult{Messages: []model.Message{}}
	}

	messages := s.composeMessages(conversation, loaded.Messages, query)

	// 2. 流式生成回答，每个分块包装成 JSON 下发
	answer, err := s.llmClient.StreamChat(ctx, messages, func(delta string) error {
		if shouldStop != nil && shouldStop() {
			// 停止标志生效：跳过下发但保留已生成内容
			return nil
		}
		payload := map[string]string{"chunk": delta}
		b, _ := json.Marshal(payload)
		return ws.WriteMessage(websocket.TextMessage, b)
	})
	if err != nil {
		return fmt.Errorf("流式生成回答失败: %w", err)
	}

	// 3. 发送完成通知
	sendCompletion(ws)

	// 4. 将本轮问答经去重过滤持久化。
	// 使用后台上下文：即使原始请求被取消，也要保存已生成的回答
	now := time.Now()
	batch := []model.Message{
		{ConversationID: conversation.ID, Role: model.RoleUser, Content: query, Timestamp: now},
	}
	if answer != "" {
		batch = append(batch, model.Message{
			ConversationID: conversation.ID,
			Role:           model.RoleAssistant,
			Content:        answer,
			Timestamp:      now.Add(time.Millisecond),
		})
	}
	outcomes, err := s.syncService.Save(context.Background(), conversation.ID, user.ID, batch)
	if err != nil {
		// 只记录错误，不返回给客户端，流式响应已经完成
		log.Errorf("保存会话消息失败: conversationID=%s, err=%v", conversation.ID, err)
	}

	// 5. 发布学习活动事件（尽力而为）
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		if pubErr := kafka.PublishActivity(events.ActivityEvent{
			Type:           events.TypeMessageSaved,
			UserID:         user.ID,
			ConversationID: conversation.ID,
			OccurredAt:     time.Now(),
		}); pubErr != nil {
			log.Warnf("发布消息活动事件失败: %v", pubErr)
		}
	}

	return nil
}

// composeMessages 组装 system 提示、截断后的历史与当前问题。
func (s *chatService) composeMessages(conversation *model.Conversation, history []model.Message, query string) []llm.Message {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{
		Role:    model.RoleSystem,
		Content: fmt.Sprintf("You are a patient tutor. The student is learning about %q. Answer clearly and encourage follow-up questions.", conversation.Topic),
	})
	for _, m := range history {
		// 本地合成的欢迎语不参与提示
		if m.Role == model.RoleAssistant && IsWelcomeMessage(m.Content) {
			continue
		}
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: model.RoleUser, Content: query})
	return msgs
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"timestamp": time.Now().UnixMilli(),
		"date":      time.Now().Format("2006-01-02T15:04:05"),
	}
	b, _ := json.Marshal(notif)
	_ = ws.WriteMessage(websocket.TextMessage, b)
}
