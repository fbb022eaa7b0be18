package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Nk110820004/freddie-backend-sub000/internal/config"
	"github.com/Nk110820004/freddie-backend-sub000/internal/metrics"
	"github.com/Nk110820004/freddie-backend-sub000/internal/models"
	"github.com/Nk110820004/freddie-backend-sub000/pkg/logger"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
	"gorm.io/gorm"
)

// ErrGenerationEmpty is returned when a provider answers with blank text.
var ErrGenerationEmpty = errors.New("generated reply is empty")

const (
	PurposeAutoReply  = "auto_reply"
	PurposeSuggestion = "suggestion"
)

// ReplyRequest carries what the generator needs to draft a public reply.
type ReplyRequest struct {
	ReviewID       uint
	OutletID       uint
	Rating         int
	CustomerName   string
	ReviewText     string
	OutletName     string
	OutletLocation string
	OutletCategory string

	LLMConfigID      *uint
	PromptTemplateID *uint
	Purpose          string
}

func NewReplyRequest(review *models.Review, outlet *models.Outlet, purpose string) ReplyRequest {
	return ReplyRequest{
		ReviewID:         review.ID,
		OutletID:         outlet.ID,
		Rating:           review.Rating,
		CustomerName:     review.CustomerName,
		ReviewText:       review.Body,
		OutletName:       outlet.Name,
		OutletLocation:   outlet.Location,
		OutletCategory:   outlet.Category,
		LLMConfigID:      outlet.LLMConfigID,
		PromptTemplateID: outlet.PromptTemplateID,
		Purpose:          purpose,
	}
}

// ReplyGenerator drafts reply text for a review.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
}

type AIService struct {
	db      *gorm.DB
	config  *config.OpenAIConfig
	prompts *PromptService
	usage   *AIUsageService
}

func NewAIService(db *gorm.DB, cfg *config.OpenAIConfig) *AIService {
	return &AIService{
		db:      db,
		config:  cfg,
		prompts: NewPromptService(db),
		usage:   NewAIUsageService(db),
	}
}

type llmResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// GenerateReply tries every configured LLM in order until one returns text.
func (s *AIService) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	prompt := RenderReplyPrompt(s.prompts.GetForOutlet(req.PromptTemplateID), req)

	llmConfigs := s.getOrderedLLMConfigs(req.LLMConfigID)
	if len(llmConfigs) == 0 {
		return "", fmt.Errorf("no LLM configuration available")
	}

	var lastErr error
	for i, llmConfig := range llmConfigs {
		logger.Debug().Uint("review_id", req.ReviewID).Str("llm", llmConfig.Name).
			Msgf("[AI] Attempting LLM %d/%d", i+1, len(llmConfigs))

		start := time.Now()
		result, err := s.callLLM(ctx, &llmConfig, prompt)
		if err == nil && strings.TrimSpace(result.Content) == "" {
			err = ErrGenerationEmpty
		}
		s.recordUsage(req, &llmConfig, result, time.Since(start), err)

		if err == nil {
			metrics.AIGenerations.WithLabelValues(providerName(&llmConfig), "success").Inc()
			return strings.TrimSpace(result.Content), nil
		}

		metrics.AIGenerations.WithLabelValues(providerName(&llmConfig), "failure").Inc()
		lastErr = err
		logger.Warn().Err(err).Uint("review_id", req.ReviewID).Str("llm", llmConfig.Name).Msg("[AI] LLM failed, trying next")

		if ctx.Err() != nil {
			break
		}
	}

	if errors.Is(lastErr, ErrGenerationEmpty) {
		return "", lastErr
	}
	return "", fmt.Errorf("all LLMs failed, last error: %w", lastErr)
}

func (s *AIService) recordUsage(req ReplyRequest, llmConfig *models.LLMConfig, result *llmResult, latency time.Duration, err error) {
	entry := &models.AIUsageLog{
		OutletID:    optionalID(req.OutletID),
		ReviewID:    optionalID(req.ReviewID),
		LLMConfigID: llmConfig.ID,
		Purpose:     req.Purpose,
		Provider:    providerName(llmConfig),
		Model:       llmConfig.Model,
		LatencyMs:   latency.Milliseconds(),
		Success:     err == nil,
	}
	if result != nil {
		entry.PromptTokens = result.PromptTokens
		entry.CompletionTokens = result.CompletionTokens
		entry.TotalTokens = result.PromptTokens + result.CompletionTokens
	}
	if err != nil {
		entry.ErrorMessage = truncate(err.Error(), 500)
	}
	s.usage.Record(entry)
}

// getOrderedLLMConfigs returns the outlet's LLM first, then the default,
// then the remaining active configs by priority.
func (s *AIService) getOrderedLLMConfigs(preferredID *uint) []models.LLMConfig {
	var configs []models.LLMConfig

	if preferredID != nil {
		var preferred models.LLMConfig
		if err := s.db.Where("id = ? AND is_active = ?", *preferredID, true).First(&preferred).Error; err == nil {
			configs = append(configs, preferred)
		}
	}

	var defaultConfig models.LLMConfig
	if err := s.db.Where("is_default = ? AND is_active = ?", true, true).First(&defaultConfig).Error; err == nil {
		if len(configs) == 0 || configs[0].ID != defaultConfig.ID {
			configs = append(configs, defaultConfig)
		}
	}

	existingIDs := make(map[uint]bool)
	for _, c := range configs {
		existingIDs[c.ID] = true
	}
	var backupConfigs []models.LLMConfig
	s.db.Where("is_active = ?", true).Order("priority ASC, id ASC").Find(&backupConfigs)
	for _, c := range backupConfigs {
		if !existingIDs[c.ID] {
			configs = append(configs, c)
		}
	}

	if len(configs) == 0 && s.config != nil && s.config.APIKey != "" {
		configs = append(configs, models.LLMConfig{
			Name:     "fallback",
			Provider: "openai",
			BaseURL:  s.config.BaseURL,
			APIKey:   s.config.APIKey,
			Model:    s.config.Model,
		})
	}

	return configs
}

func providerName(llmConfig *models.LLMConfig) string {
	if llmConfig.Provider == "" {
		return "openai"
	}
	return llmConfig.Provider
}

func (s *AIService) callLLM(ctx context.Context, llmConfig *models.LLMConfig, prompt string) (*llmResult, error) {
	switch llmConfig.Provider {
	case "anthropic":
		return s.callAnthropic(ctx, llmConfig, prompt)
	case "ollama":
		return s.callOllama(ctx, llmConfig, prompt)
	case "gemini":
		return s.callGemini(ctx, llmConfig, prompt)
	case "azure":
		return s.callAzure(ctx, llmConfig, prompt)
	default:
		// openai and other OpenAI-compatible services
		return s.callOpenAI(ctx, llmConfig, prompt)
	}
}

func temperatureOf(llmConfig *models.LLMConfig) float32 {
	if llmConfig.Temperature > 0 {
		return float32(llmConfig.Temperature)
	}
	return 0.7
}

func maxTokensOf(llmConfig *models.LLMConfig) int {
	if llmConfig.MaxTokens > 0 {
		return llmConfig.MaxTokens
	}
	return 512
}

func (s *AIService) callOpenAI(ctx context.Context, llmConfig *models.LLMConfig, prompt string) (*llmResult, error) {
	clientConfig := openai.DefaultConfig(llmConfig.APIKey)
	if llmConfig.BaseURL != "" {
		clientConfig.BaseURL = llmConfig.BaseURL
	}
	return chatCompletion(ctx, openai.NewClientWithConfig(clientConfig), "OpenAI", llmConfig, prompt)
}

// callAzure uses the Model field as the deployment name.
func (s *AIService) callAzure(ctx context.Context, llmConfig *models.LLMConfig, prompt string) (*llmResult, error) {
	clientConfig := openai.DefaultAzureConfig(llmConfig.APIKey, llmConfig.BaseURL)
	return chatCompletion(ctx, openai.NewClientWithConfig(clientConfig), "Azure OpenAI", llmConfig, prompt)
}

func chatCompletion(ctx context.Context, client *openai.Client, label string, llmConfig *models.LLMConfig, prompt string) (*llmResult, error) {
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: llmConfig.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperatureOf(llmConfig),
		MaxTokens:   maxTokensOf(llmConfig),
	})
	if err != nil {
		return nil, fmt.Errorf("%s API error: %w", label, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from %s", label)
	}

	return &llmResult{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (s *AIService) callAnthropic(ctx context.Context, llmConfig *models.LLMConfig, prompt string) (*llmResult, error) {
	opts := []option.RequestOption{option.WithAPIKey(llmConfig.APIKey)}
	if llmConfig.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(llmConfig.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	model := llmConfig.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokensOf(llmConfig)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &llmResult{
		Content:          content.String(),
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

func (s *AIService) callOllama(ctx context.Context, llmConfig *models.LLMConfig, prompt string) (*llmResult, error) {
	baseURL := llmConfig.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	model := llmConfig.Model
	if model == "" {
		model = "llama3"
	}

	var (
		content          strings.Builder
		promptTokens     int
		completionTokens int
	)
	err = client.Chat(ctx, &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{Role: "user", Content: prompt},
		},
		Options: map[string]interface{}{
			"temperature": temperatureOf(llmConfig),
			"num_predict": maxTokensOf(llmConfig),
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			promptTokens = resp.PromptEvalCount
			completionTokens = resp.EvalCount
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Ollama API error: %w", err)
	}

	return &llmResult{
		Content:          content.String(),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}, nil
}

func (s *AIService) callGemini(ctx context.Context, llmConfig *models.LLMConfig, prompt string) (*llmResult, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: llmConfig.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini client error: %w", err)
	}

	model := llmConfig.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	temperature := temperatureOf(llmConfig)
	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(maxTokensOf(llmConfig)),
	})
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	result := &llmResult{Content: resp.Text()}
	if resp.UsageMetadata != nil {
		result.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return result, nil
}

// RenderReplyPrompt fills the {{var}} placeholders of a reply prompt.
func RenderReplyPrompt(template string, req ReplyRequest) string {
	customer := strings.TrimSpace(req.CustomerName)
	if customer == "" {
		customer = "a customer"
	}
	text := strings.TrimSpace(req.ReviewText)
	if text == "" {
		text = "(no text, rating only)"
	}

	replacer := strings.NewReplacer(
		"{{outlet_name}}", req.OutletName,
		"{{outlet_category}}", req.OutletCategory,
		"{{outlet_location}}", req.OutletLocation,
		"{{customer_name}}", customer,
		"{{rating}}", strconv.Itoa(req.Rating),
		"{{review_text}}", text,
	)
	return replacer.Replace(template)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
