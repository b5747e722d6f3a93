// Package service 包含了应用的业务逻辑层。
package service

import (
	"fmt"
	"regexp"
	"sync"

	"mind-tutor-go/internal/model"
)

// welcomePattern 匹配本地合成的欢迎语。模式与主题均为通配，
// 这类消息只在客户端展示，永远不允许进入存储。
var welcomePattern = regexp.MustCompile(`^Welcome to your .+ session! Let's learn about ".*"$`)

// WelcomeMessage 生成指定模式与主题的欢迎语文本。
func WelcomeMessage(mode, topic string) string {
	return fmt.Sprintf("Welcome to your %s session! Let's learn about %q", mode, topic)
}

// IsWelcomeMessage 判断内容是否匹配欢迎语模板。
func IsWelcomeMessage(content string) bool {
	return welcomePattern.MatchString(content)
}

// Signature 是消息用于去重判断的唯一标识。
// 客户端持有的副本可能还没有存储分配的 ID，因此用内容三元组而不是 ID 判重。
// 比较对空白与大小写敏感，不做任何归一化。
type Signature struct {
	ConversationID string
	Role           string
	Content        string
}

// SignatureOf 计算一条消息的去重签名。
func SignatureOf(m model.Message) Signature {
	return Signature{
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
	}
}

// SignatureSet 记录本进程生命周期内已确认持久化的消息签名。
// 进程重启后集合清空，存储本身仍是最终的事实来源：
// 重启后对已存在消息的再次保存是无害的重复写入。
// 集合由持有它的协调器实例独占，内部加锁以适应多 goroutine 的服务端运行时。
type SignatureSet struct {
	mu   sync.Mutex
	seen map[Signature]struct{}
}

// NewSignatureSet 创建一个空的签名集合。
func NewSignatureSet() *SignatureSet {
	return &SignatureSet{seen: make(map[Signature]struct{})}
}

// Contains 判断签名是否已被记录。
func (s *SignatureSet) Contains(sig Signature) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[sig]
	return ok
}

// Add 记录一个签名。
func (s *SignatureSet) Add(sig Signature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[sig] = struct{}{}
}

// FilterForPersistence 将候选消息批次缩减为真正需要持久化的子集。
// 逐条按顺序应用规则：
//  1. doNotPersist 标记的消息丢弃；
//  2. assistant 角色且内容匹配欢迎语模板的消息丢弃；
//  3. 签名已在 persisted 中（本进程内已保存过）的消息丢弃；
//  4. 其余保留，同一批次内的重复签名只保留第一条。
//
// 该函数从不报错，只做裁剪；persisted 集合不会被修改，
// 成功持久化后再由调用方记录签名。
func FilterForPersistence(conversationID string, candidates []model.Message, persisted *SignatureSet) []model.Message {
	toPersist := make([]model.Message, 0, len(candidates))
	inBatch := make(map[Signature]struct{}, len(candidates))

	for _, candidate := range candidates {
		if candidate.DoNotPersist {
			continue
		}
		if candidate.Role == model.RoleAssistant && IsWelcomeMessage(candidate.Content) {
			continue
		}

		sig := SignatureOf(candidate)
		sig.ConversationID = conversationID
		if persisted.Contains(sig) {
			continue
		}
		if _, dup := inBatch[sig]; dup {
			continue
		}

		inBatch[sig] = struct{}{}
		candidate.ConversationID = conversationID
		toPersist = append(toPersist, candidate)
	}

	return toPersist
}
