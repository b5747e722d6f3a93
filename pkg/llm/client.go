// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"mind-tutor-go/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client defines the interface for an LLM client. The model is treated as a
// black box: messages in, text (or structured JSON) out.
type Client interface {
	// Chat 以 role-based 消息调用聊天接口并返回完整回答。
	Chat(ctx context.Context, messages []Message) (string, error)
	// StreamChat 流式调用聊天接口，每收到一个分块调用一次 onDelta；
	// onDelta 返回错误时中断流（例如客户端要求停止）。
	StreamChat(ctx context.Context, messages []Message, onDelta func(delta string) error) (string, error)
	// CompleteJSON 要求模型返回一个 JSON 对象，原样返回其文本。
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// Transcribe 将音频内容转写为文本。
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

type openAIClient struct {
	cfg    config.LLMConfig
	client *openai.Client
}

// NewClient creates a new LLM client for any OpenAI-compatible endpoint.
func NewClient(cfg config.LLMConfig) Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &openAIClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

func (c *openAIClient) buildRequest(messages []Message) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: float32(c.cfg.Temperature),
	}
	if c.cfg.MaxTokens > 0 {
		req.MaxTokens = c.cfg.MaxTokens
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return req
}

// Chat 调用聊天接口并一次性返回完整回答。
func (c *openAIClient) Chat(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(messages))
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamChat 流式调用聊天接口，返回拼接后的完整回答。
func (c *openAIClient) StreamChat(ctx context.Context, messages []Message, onDelta func(delta string) error) (string, error) {
	req := c.buildRequest(messages)
	req.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion stream failed: %w", err)
	}
	defer stream.Close()

	var full string
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full, fmt.Errorf("stream recv failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full += delta
		if err := onDelta(delta); err != nil {
			return full, err
		}
	}
	return full, nil
}

// CompleteJSON 要求模型以 JSON 对象响应，返回原始 JSON 文本，由调用方解析。
func (c *openAIClient) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := c.buildRequest([]Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	})
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("json completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("json completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Transcribe 通过 Whisper 接口将音频转写为文本。
func (c *openAIClient) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	model := c.cfg.TranscriptionModel
	if model == "" {
		model = openai.Whisper1
	}
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return resp.Text, nil
}
