// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"mind-tutor-go/internal/model"
	"mind-tutor-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// LocalCache 定义了会话消息镜像缓存（Reconciliation Cache）的操作。
// 它保存每个会话最近一次已知正确的消息列表，在存储不可达时作为降级数据源。
// Read 是尽力而为的：任何失败都退化为空列表，绝不向上抛错。
type LocalCache interface {
	// Write 以整体替换的方式覆盖某会话的镜像。
	Write(ctx context.Context, conversationID string, messages []model.Message)
	// Read 返回某会话的镜像副本；失败或不存在时返回空切片。
	Read(ctx context.Context, conversationID string) []model.Message
	// Invalidate 丢弃某会话的镜像（会话删除时调用）。
	Invalidate(ctx context.Context, conversationID string)
}

type redisLocalCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewRedisLocalCache 创建一个基于 Redis 的镜像缓存。
func NewRedisLocalCache(redisClient *redis.Client, ttl time.Duration) LocalCache {
	return &redisLocalCache{redisClient: redisClient, ttl: ttl}
}

func mirrorKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:mirror", conversationID)
}

// Write 将消息列表序列化为 JSON 数组整体写入，旧镜像被完全替换。
func (c *redisLocalCache) Write(ctx context.Context, conversationID string, messages []model.Message) {
	jsonData, err := json.Marshal(messages)
	if err != nil {
		log.Errorf("序列化会话镜像失败: conversationID=%s, err=%v", conversationID, err)
		return
	}
	if err := c.redisClient.Set(ctx, mirrorKey(conversationID), jsonData, c.ttl).Err(); err != nil {
		// 镜像只是降级通道，写入失败不影响主流程
		log.Warnf("写入会话镜像失败: conversationID=%s, err=%v", conversationID, err)
	}
}

// Read 读取镜像；键不存在、连接失败或数据损坏时一律返回空列表。
func (c *redisLocalCache) Read(ctx context.Context, conversationID string) []model.Message {
	jsonData, err := c.redisClient.Get(ctx, mirrorKey(conversationID)).Result()
	if err == redis.Nil {
		return []model.Message{}
	}
	if err != nil {
		log.Warnf("读取会话镜像失败: conversationID=%s, err=%v", conversationID, err)
		return []model.Message{}
	}
	var messages []model.Message
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		log.Warnf("会话镜像数据损坏: conversationID=%s, err=%v", conversationID, err)
		return []model.Message{}
	}
	return messages
}

// Invalidate 删除镜像键。
func (c *redisLocalCache) Invalidate(ctx context.Context, conversationID string) {
	if err := c.redisClient.Del(ctx, mirrorKey(conversationID)).Err(); err != nil {
		log.Warnf("删除会话镜像失败: conversationID=%s, err=%v", conversationID, err)
	}
}

// MemoryLocalCache 是 LocalCache 的进程内实现，
// 用于测试以及不部署 Redis 的单机场景。
type MemoryLocalCache struct {
	mu    sync.RWMutex
	items map[string][]model.Message
}

// NewMemoryLocalCache 创建一个空的进程内镜像缓存。
func NewMemoryLocalCache() *MemoryLocalCache {
	return &MemoryLocalCache{items: make(map[string][]model.Message)}
}

func (c *MemoryLocalCache) Write(_ context.Context, conversationID string, messages []model.Message) {
	copied := make([]model.Message, len(messages))
	copy(copied, messages)
	c.mu.Lock()
	c.items[conversationID] = copied
	c.mu.Unlock()
}

func (c *MemoryLocalCache) Read(_ context.Context, conversationID string) []model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached, ok := c.items[conversationID]
	if !ok {
		return []model.Message{}
	}
	copied := make([]model.Message, len(cached))
	copy(copied, cached)
	return copied
}

func (c *MemoryLocalCache) Invalidate(_ context.Context, conversationID string) {
	c.mu.Lock()
	delete(c.items, conversationID)
	c.mu.Unlock()
}
