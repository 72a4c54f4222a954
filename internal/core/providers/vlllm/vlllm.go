package vlllm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sashabaranov/go-openai"

	"product-catalog-server-go/internal/platform/config"
	"product-catalog-server-go/internal/platform/errors"
	"product-catalog-server-go/internal/platform/logging"
	"product-catalog-server-go/internal/platform/observability"
)

const (
	TypeOpenAI = "openai"
	TypeOllama = "ollama"

	defaultOllamaURL = "http://localhost:11434"
)

// PartType 消息片段类型
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// Part 一条多模态消息中的文本或图片片段
type Part struct {
	Type PartType
	Text string
	// MediaType/Data 仅用于图片片段，Data 为标准 base64
	MediaType string
	Data      string
}

// DataURL 将图片片段渲染为 data URL
func (p Part) DataURL() string {
	return "data:" + p.MediaType + ";base64," + p.Data
}

// Invocation 一次视觉模型调用
type Invocation struct {
	SystemInstruction string
	Parts             []Part
	MaxOutputTokens   int
	Temperature       float64
	Timeout           time.Duration
}

// Provider VLLLM提供者，直接调用多模态API并返回完整文本回复
type Provider struct {
	name   string
	config config.VLLLMConfig
	logger *logging.Logger

	openaiClient *openai.Client
	httpClient   *http.Client
}

// OllamaRequest Ollama API请求结构
type OllamaRequest struct {
	Model    string                 `json:"model"`
	Messages []OllamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// OllamaMessage Ollama消息结构
type OllamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64编码的图片，不带data URL前缀
}

// OllamaResponse Ollama API响应结构
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// NewProvider 创建并初始化VLLLM提供者
func NewProvider(name string, cfg config.VLLLMConfig, logger *logging.Logger) (*Provider, error) {
	p := &Provider{
		name:       name,
		config:     cfg,
		logger:     logger,
		httpClient: &http.Client{},
	}

	switch strings.ToLower(cfg.Type) {
	case TypeOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New(errors.KindConfig, "vlllm.new", fmt.Sprintf("provider %s: api key is required", name))
		}
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		}
		p.openaiClient = openai.NewClientWithConfig(clientConfig)

	case TypeOllama:
		if p.config.BaseURL == "" {
			p.config.BaseURL = defaultOllamaURL
		}

	default:
		return nil, errors.New(errors.KindConfig, "vlllm.new", fmt.Sprintf("不支持的VLLLM类型: %s", cfg.Type))
	}

	if p.config.ModelName == "" {
		return nil, errors.New(errors.KindConfig, "vlllm.new", fmt.Sprintf("provider %s: model_name is required", name))
	}

	logger.InfoTag("VLLLM", "VLLLM Provider初始化成功: name=%s type=%s model=%s", name, cfg.Type, p.config.ModelName)
	return p, nil
}

// Name 返回配置中的提供者名称
func (p *Provider) Name() string { return p.name }

// ModelName 返回模型名称
func (p *Provider) ModelName() string { return p.config.ModelName }

// Invoke 发送一次多图请求并返回完整文本回复，思考标签会被移除
func (p *Provider) Invoke(ctx context.Context, inv Invocation) (string, error) {
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}
	if inv.MaxOutputTokens <= 0 {
		inv.MaxOutputTokens = p.config.MaxTokens
	}

	ctx, end := observability.StartSpan(ctx, "vlllm", "invoke")
	start := time.Now()

	var (
		reply string
		err   error
	)
	switch strings.ToLower(p.config.Type) {
	case TypeOpenAI:
		reply, err = p.invokeOpenAI(ctx, inv)
	case TypeOllama:
		reply, err = p.invokeOllama(ctx, inv)
	default:
		err = fmt.Errorf("unsupported VLLLM provider: %s", p.config.Type)
	}
	end(err)

	labels := map[string]string{"provider": p.name, "model": p.config.ModelName}
	observability.RecordDuration(ctx, "vlllm.invoke.duration_ms", time.Since(start), labels)
	if err != nil {
		p.logger.ErrorTag("VLLLM", "视觉模型调用失败: provider=%s model=%s err=%v", p.name, p.config.ModelName, err)
		return "", err
	}

	reply = stripThinkTags(reply)
	p.logger.DebugTag("VLLLM", "视觉模型调用成功: provider=%s reply_length=%d elapsed=%s",
		p.name, len(reply), time.Since(start))
	return reply, nil
}

// invokeOpenAI 使用OpenAI Chat Completions多模态接口
func (p *Provider) invokeOpenAI(ctx context.Context, inv Invocation) (string, error) {
	messageParts := make([]openai.ChatMessagePart, 0, len(inv.Parts))
	images := 0
	for _, part := range inv.Parts {
		switch part.Type {
		case PartText:
			messageParts = append(messageParts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: part.Text,
			})
		case PartImage:
			images++
			messageParts = append(messageParts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    part.DataURL(),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		}
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if inv.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: inv.SystemInstruction,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: messageParts,
	})

	request := openai.ChatCompletionRequest{
		Model:       p.config.ModelName,
		Messages:    messages,
		MaxTokens:   inv.MaxOutputTokens,
		Temperature: float32(inv.Temperature),
	}
	if p.config.TopP > 0 {
		request.TopP = float32(p.config.TopP)
	}

	p.logger.InfoTag("VLLLM", "向OpenAI发送多模态请求: model=%s images=%d max_tokens=%d",
		p.config.ModelName, images, inv.MaxOutputTokens)

	response, err := p.openaiClient.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion returned no choices")
	}

	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// invokeOllama 使用Ollama /api/chat 非流式接口
func (p *Provider) invokeOllama(ctx context.Context, inv Invocation) (string, error) {
	var (
		texts  []string
		images []string
	)
	for _, part := range inv.Parts {
		switch part.Type {
		case PartText:
			texts = append(texts, part.Text)
		case PartImage:
			images = append(images, part.Data)
		}
	}

	messages := make([]OllamaMessage, 0, 2)
	if inv.SystemInstruction != "" {
		messages = append(messages, OllamaMessage{Role: "system", Content: inv.SystemInstruction})
	}
	messages = append(messages, OllamaMessage{
		Role:    "user",
		Content: strings.Join(texts, "\n\n"),
		Images:  images,
	})

	options := map[string]interface{}{
		"temperature": inv.Temperature,
	}
	if inv.MaxOutputTokens > 0 {
		options["num_predict"] = inv.MaxOutputTokens
	}
	if p.config.TopP > 0 {
		options["top_p"] = p.config.TopP
	}

	requestBody, err := sonic.Marshal(OllamaRequest{
		Model:    p.config.ModelName,
		Messages: messages,
		Stream:   false,
		Options:  options,
	})
	if err != nil {
		return "", fmt.Errorf("请求序列化失败: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", strings.TrimSuffix(p.config.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("创建Ollama请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	p.logger.InfoTag("VLLLM", "向Ollama发送多模态请求: url=%s model=%s images=%d", url, p.config.ModelName, len(images))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("Ollama API调用失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取Ollama响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Ollama API返回错误: status=%d body=%s", resp.StatusCode, truncate(string(body), 256))
	}

	var response OllamaResponse
	if err := sonic.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("解析Ollama响应失败: %w", err)
	}
	if response.Error != "" {
		return "", fmt.Errorf("Ollama API返回错误: %s", response.Error)
	}

	return strings.TrimSpace(response.Message.Content), nil
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// stripThinkTags 移除推理模型输出的思考内容，未闭合的<think>会丢弃其后全部内容
func stripThinkTags(content string) string {
	content = thinkBlock.ReplaceAllString(content, "")
	if idx := strings.Index(content, "<think>"); idx >= 0 {
		content = content[:idx]
	}
	return strings.TrimSpace(content)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
