// Package chat drives the assistant conversation: the bubble log, the
// question and routine flows, and the completion backends behind them.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const maxReplyBytes = 1 << 20

var (
	// ErrEmptyReply means the backend answered with valid JSON that carries
	// no usable message content.
	ErrEmptyReply = errors.New("reply has no message content")
	// ErrAssistantDisabled is returned when no backend is configured.
	ErrAssistantDisabled = errors.New("assistant is not configured")
)

// Message is one role-tagged entry of a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: openai.ChatMessageRoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: openai.ChatMessageRoleUser, Content: content}
}

// Completer sends a conversation and returns the generated reply text.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ProxyCompleter posts {"messages": [...]} to a proxy that forwards it to a
// chat-completion API and relays the response unchanged.
type ProxyCompleter struct {
	URL    string
	Client *http.Client
}

type proxyRequest struct {
	Messages []Message `json:"messages"`
}

type proxyReply struct {
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete implements Completer.
func (p *ProxyCompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(proxyRequest{Messages: messages})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post proxy: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("proxy status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return extractReply(data)
}

// extractReply reads choices[0].message.content. Bodies that are not JSON
// are errors; JSON of any other shape is ErrEmptyReply.
func extractReply(data []byte) (string, error) {
	if !json.Valid(data) {
		return "", fmt.Errorf("decode reply: invalid JSON: %s", truncate(string(data), 200))
	}
	var reply proxyReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmptyReply, err)
	}
	if len(reply.Choices) == 0 || reply.Choices[0].Message == nil {
		return "", ErrEmptyReply
	}
	content := reply.Choices[0].Message.Content
	if content == "" {
		return "", ErrEmptyReply
	}
	return content, nil
}

// OpenAIConfig configures a direct OpenAI-compatible backend.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenAICompleter calls an OpenAI-compatible chat completion API.
type OpenAICompleter struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAICompleter creates a completer from cfg. BaseURL is optional.
func NewOpenAICompleter(cfg OpenAIConfig) *OpenAICompleter {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAICompleter{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}
}

// Complete implements Completer.
func (o *OpenAICompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	openaiMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		openaiMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.cfg.Model,
		Messages:  openaiMessages,
		MaxTokens: o.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}

type disabledCompleter struct{}

// Disabled returns a completer that always fails with ErrAssistantDisabled.
func Disabled() Completer { return disabledCompleter{} }

func (disabledCompleter) Complete(context.Context, []Message) (string, error) {
	return "", ErrAssistantDisabled
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
