// Package service 包含了应用的业务逻辑层。
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"mind-tutor-go/internal/config"
	"mind-tutor-go/pkg/llm"
	"mind-tutor-go/pkg/log"
	"mind-tutor-go/pkg/storage"

	"github.com/google/uuid"
)

const mindmapSystemPrompt = `You are a mindmap builder. Given a transcript of spoken notes, respond
with a JSON object of the shape {"root":{"label":"...","children":[{"label":"...","children":[]}]}}
capturing the main topic and its branches. Do not include any other keys.`

// MindmapNode 是思维导图中的一个节点。
type MindmapNode struct {
	Label    string        `json:"label"`
	Children []MindmapNode `json:"children"`
}

// Mindmap 是一次从语音生成的思维导图。
type Mindmap struct {
	ID         string      `json:"id"`
	Transcript string      `json:"transcript"`
	Root       MindmapNode `json:"root"`
	AudioURL   string      `json:"audioUrl,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// MindmapService 定义了从语音录音生成思维导图的业务接口。
type MindmapService interface {
	// FromSpeech 保存原始录音、转写为文本并生成思维导图结构。
	FromSpeech(ctx context.Context, userID uint, filename string, audio io.Reader, size int64, contentType string) (*Mindmap, error)
}

type mindmapService struct {
	llmClient llm.Client
}

// NewMindmapService 创建一个新的 MindmapService 实例。
func NewMindmapService(llmClient llm.Client) MindmapService {
	return &mindmapService{llmClient: llmClient}
}

// FromSpeech 依次执行：录音归档到 MinIO → Whisper 转写 → LLM 生成导图 JSON。
func (s *mindmapService) FromSpeech(ctx context.Context, userID uint, filename string, audio io.Reader, size int64, contentType string) (*Mindmap, error) {
	mindmapID := uuid.NewString()
	objectName := fmt.Sprintf("recordings/%d/%s-%s", userID, mindmapID, filename)

	// 录音先整体读入：归档与转写各需要读一遍
	data, err := io.ReadAll(io.LimitReader(audio, size))
	if err != nil {
		return nil, fmt.Errorf("读取录音内容失败: %w", err)
	}

	bucket := config.Conf.MinIO.BucketName
	if err := storage.PutObject(ctx, bucket, objectName, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		// 归档失败不阻断转写，录音仍可处理
		log.Warnf("归档录音失败: object=%s, err=%v", objectName, err)
		objectName = ""
	}

	transcript, err := s.llmClient.Transcribe(ctx, filename, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("转写录音失败: %w", err)
	}

	raw, err := s.llmClient.CompleteJSON(ctx, mindmapSystemPrompt, transcript)
	if err != nil {
		return nil, fmt.Errorf("生成思维导图失败: %w", err)
	}

	var parsed struct {
		Root MindmapNode `json:"root"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("解析思维导图 JSON 失败: %w", err)
	}

	mindmap := &Mindmap{
		ID:         mindmapID,
		Transcript: transcript,
		Root:       parsed.Root,
		CreatedAt:  time.Now(),
	}

	if objectName != "" {
		if url, urlErr := storage.GetPresignedURL(bucket, objectName, 24*time.Hour); urlErr == nil {
			mindmap.AudioURL = url
		}
	}
	return mindmap, nil
}
