package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wavesbot/meeting-scribe/internal/config"
	"github.com/wavesbot/meeting-scribe/internal/diarize"
	"github.com/wavesbot/meeting-scribe/internal/logger"

	"github.com/sashabaranov/go-openai"
)

// openAIClientInterface 定义 OpenAI 客户端接口，便于测试
type openAIClientInterface interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Client struct {
	config         *config.LLM
	openaiClient   openAIClientInterface
	maxInputTokens int
}

// NewClient transport 不为 nil 时通过代理访问
func NewClient(cfg *config.LLM, transport *http.Transport) *Client {
	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	openaiConfig.BaseURL = cfg.BaseURL
	if transport != nil {
		openaiConfig.HTTPClient = &http.Client{Transport: transport}
	}

	maxInputTokens := cfg.MaxTokens - 2000 // 预留 2000 tokens 给 system prompt 和输出
	if maxInputTokens <= 0 {
		maxInputTokens = cfg.MaxTokens / 2
	}
	return &Client{
		config:         cfg,
		openaiClient:   openai.NewClientWithConfig(openaiConfig),
		maxInputTokens: maxInputTokens,
	}
}

// estimateTokens 估算文本的 token 数量，英文约 1.3 token/词
func estimateTokens(text string) int {
	tokens := int(float64(len(strings.Fields(text))) * 1.3)
	if tokens < len(text)/4 {
		// 如果估算值太小，使用字符数的 1/4 作为下限
		tokens = len(text) / 4
	}
	return tokens
}

// segmentLine 单个片段在 prompt 中的格式 "speaker<tag>: 文本"
func segmentLine(seg diarize.Segment) string {
	return fmt.Sprintf("speaker%d: %s", seg.SpeakerTag, seg.Text)
}

func segmentsToPromptText(segments []diarize.Segment) string {
	lines := make([]string, len(segments))
	for i, seg := range segments {
		lines[i] = segmentLine(seg)
	}
	return strings.Join(lines, "\n")
}

// splitSegmentsIntoChunks 按 token 估算拆分片段
func splitSegmentsIntoChunks(segments []diarize.Segment, maxTokensPerChunk int) [][]diarize.Segment {
	if len(segments) == 0 {
		return nil
	}
	chunks := make([][]diarize.Segment, 0)
	current := make([]diarize.Segment, 0)
	currentTokens := 0

	for _, seg := range segments {
		tokens := estimateTokens(segmentLine(seg))
		if currentTokens+tokens > maxTokensPerChunk && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, seg)
		currentTokens += tokens
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// SummarizeMinutes 总结会议纪要，超过上下文窗口时分块增量总结
func (c *Client) SummarizeMinutes(ctx context.Context, segments []diarize.Segment) (string, error) {
	if len(segments) == 0 {
		return "", nil
	}
	text := segmentsToPromptText(segments)
	tokens := estimateTokens(text)
	if tokens <= c.maxInputTokens {
		return c.summarizeOnce(ctx, text, "")
	}

	logger.Infof("[LLM] 会议纪要过长 (%d tokens)，将拆分为多个 chunk 进行总结", tokens)
	chunks := splitSegmentsIntoChunks(segments, c.maxInputTokens)

	summary := ""
	for i, chunk := range chunks {
		logger.Debugf("[LLM] 处理 chunk %d/%d", i+1, len(chunks))
		next, err := c.summarizeOnce(ctx, segmentsToPromptText(chunk), summary)
		if err != nil {
			return "", fmt.Errorf("总结 chunk %d 失败: %w", i+1, err)
		}
		summary = next
	}
	return summary, nil
}

// summarizeOnce 执行一次总结请求，prevSummary 非空时在其基础上合并
func (c *Client) summarizeOnce(ctx context.Context, transcript, prevSummary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	systemPrompt := `You summarize meeting transcripts. Speakers are labelled speaker<N>.
Reply in plain text with a short overview followed by a bullet list of decisions and action items.`

	userPrompt := "Transcript:\n" + transcript
	if prevSummary != "" {
		userPrompt = "Summary of the earlier part of the meeting:\n" + prevSummary +
			"\n\nContinuation of the transcript:\n" + transcript +
			"\n\nReturn the updated summary for the whole meeting."
	}

	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.3,
		MaxTokens:   1500,
	}

	resp, err := c.openaiClient.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("调用 LLM API 失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM API 返回空结果")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
