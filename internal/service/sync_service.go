// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"mind-tutor-go/internal/model"
	"mind-tutor-go/internal/repository"
	"mind-tutor-go/pkg/log"

	"golang.org/x/sync/singleflight"
)

// ErrAllMessagesFailed 表示一个批次中的所有消息都持久化失败。
// 部分失败不会产生该错误，只会体现在逐条结果中。
var ErrAllMessagesFailed = errors.New("all messages in batch failed to persist")

// RetryPolicy 描述加载消息时的指数退避重试策略。
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy 对应 1s、3s、9s 的三次尝试节奏。
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	Multiplier:  3,
}

// Delay 返回第 attempt 次失败后的等待时间（attempt 从 0 开始）。
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// SaveOutcome 是保存批次中单条消息的处理结果。
// 各条消息相互独立：一条失败不影响其他消息，也从不回滚已成功的写入。
type SaveOutcome struct {
	Message model.Message
	ID      string
	Err     error
}

// LoadResult 是一次加载的最终结果。
// Stale 为 true 表示存储不可达、数据来自本地镜像缓存，可能落后于存储。
type LoadResult struct {
	Messages []model.Message
	Stale    bool
}

// SyncService 实现客户端会话状态与持久化消息存储之间的同步协议：
// 幂等的批量保存（先去重过滤再落库）与带重试、缓存降级的加载。
type SyncService interface {
	Save(ctx context.Context, conversationID string, userID uint, candidates []model.Message) ([]SaveOutcome, error)
	Load(ctx context.Context, conversationID string) (LoadResult, error)
}

type syncService struct {
	messageRepo repository.MessageRepository
	cache       repository.LocalCache
	policy      RetryPolicy
	persisted   *SignatureSet

	// 同一会话同时只允许一个 Load 访问存储，并发请求合并等待同一结果。
	loads singleflight.Group

	// sleep 在重试间隔时挂起，ctx 取消时提前返回。测试中注入假时钟。
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSyncService 创建一个新的 SyncService 实例。
// 签名集合随实例创建，因此不同实例（例如测试中的多个协调器）互不共享去重状态。
func NewSyncService(messageRepo repository.MessageRepository, cache repository.LocalCache, policy RetryPolicy) SyncService {
	return &syncService{
		messageRepo: messageRepo,
		cache:       cache,
		policy:      policy,
		persisted:   NewSignatureSet(),
		sleep:       sleepWithContext,
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Save 对候选批次应用去重过滤后逐条持久化。
// 空批次与被完全过滤掉的批次都是成功（没有需要保存的内容不是错误）。
// 仅当批次中所有消息都失败时返回 ErrAllMessagesFailed。
func (s *syncService) Save(ctx context.Context, conversationID string, userID uint, candidates []model.Message) ([]SaveOutcome, error) {
	if len(candidates) == 0 {
		return []SaveOutcome{}, nil
	}

	toPersist := FilterForPersistence(conversationID, candidates, s.persisted)
	if len(toPersist) == 0 {
		log.Infof("保存批次全部被过滤，无需写入: conversationID=%s, candidates=%d", conversationID, len(candidates))
		return []SaveOutcome{}, nil
	}

	outcomes := make([]SaveOutcome, 0, len(toPersist))
	succeeded := make([]model.Message, 0, len(toPersist))
	for _, msg := range toPersist {
		msg.UserID = userID
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		// 客户端专用字段不进入存储
		msg.Status = ""
		msg.DoNotPersist = false

		id, err := s.messageRepo.Create(ctx, msg)
		if err != nil {
			log.Errorf("持久化消息失败: conversationID=%s, role=%s, err=%v", conversationID, msg.Role, err)
			outcomes = append(outcomes, SaveOutcome{Message: msg, Err: err})
			continue
		}

		msg.ID = id
		// 只有确认写入成功的签名才记入去重集合，失败的消息允许客户端重试
		s.persisted.Add(SignatureOf(msg))
		outcomes = append(outcomes, SaveOutcome{Message: msg, ID: id})
		succeeded = append(succeeded, msg)
	}

	if len(succeeded) > 0 {
		s.refreshMirror(ctx, conversationID, succeeded)
	}

	if len(succeeded) == 0 {
		return outcomes, ErrAllMessagesFailed
	}
	return outcomes, nil
}

// refreshMirror 将新持久化的消息并入镜像缓存并保持时间戳升序。
// 镜像只是降级通道，这里不访问存储。
func (s *syncService) refreshMirror(ctx context.Context, conversationID string, persistedMsgs []model.Message) {
	mirror := s.cache.Read(ctx, conversationID)
	mirror = append(mirror, persistedMsgs...)
	sort.SliceStable(mirror, func(i, j int) bool {
		return mirror[i].Timestamp.Before(mirror[j].Timestamp)
	})
	s.cache.Write(ctx, conversationID, mirror)
}

// Load 获取某会话的权威消息列表。
// 依次尝试存储（指数退避重试），全部失败后降级到镜像缓存；
// 镜像非空时返回可能过期的数据，镜像也为空时才把存储错误暴露给调用方。
// 同一会话的并发 Load 被合并为一次存储查询。
func (s *syncService) Load(ctx context.Context, conversationID string) (LoadResult, error) {
	v, err, _ := s.loads.Do(conversationID, func() (interface{}, error) {
		return s.loadWithRetry(ctx, conversationID)
	})
	if err != nil {
		return LoadResult{Messages: []model.Message{}}, err
	}
	return v.(LoadResult), nil
}

func (s *syncService) loadWithRetry(ctx context.Context, conversationID string) (LoadResult, error) {
	var lastErr error
	for attempt := 0; attempt < s.policy.MaxAttempts; attempt++ {
		messages, err := s.messageRepo.GetByConversation(ctx, conversationID)
		if err == nil {
			// 存储结果整体覆盖镜像，不做合并
			s.cache.Write(ctx, conversationID, messages)
			return LoadResult{Messages: messages, Stale: false}, nil
		}

		lastErr = err
		log.Warnf("加载会话消息失败 (第 %d/%d 次): conversationID=%s, err=%v",
			attempt+1, s.policy.MaxAttempts, conversationID, err)

		if attempt == s.policy.MaxAttempts-1 {
			break
		}
		if err := s.sleep(ctx, s.policy.Delay(attempt)); err != nil {
			// 调用方取消（例如切换了会话），放弃剩余重试
			return LoadResult{}, err
		}
	}

	// 重试耗尽，降级到镜像缓存
	cached := s.cache.Read(ctx, conversationID)
	if len(cached) > 0 {
		log.Warnf("存储不可达，返回镜像缓存数据: conversationID=%s, messages=%d", conversationID, len(cached))
		return LoadResult{Messages: cached, Stale: true}, nil
	}

	return LoadResult{}, fmt.Errorf("加载会话 %s 失败且无可用镜像: %w", conversationID, lastErr)
}
