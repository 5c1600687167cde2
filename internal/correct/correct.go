// Package correct sends low-confidence OCR text to an OpenAI-compatible chat
// model for correction.
package correct

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/triage"
	"github.com/hyperjump/yomitori/pkg/utils"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// SystemPrompt frames the model as a historical-text OCR corrector.
const SystemPrompt = "You are an expert at correcting OCR errors in historical texts."

const userPromptPrefix = "Please correct the following OCR text:\n"

// CorrectedSuffix is appended to the flagged file stem for corrected output.
const CorrectedSuffix = "_openai_corrected"

var (
	// ErrEmptyText is returned when there is no text to correct.
	ErrEmptyText = errors.New("no text to correct")
	// ErrProvider wraps every failure reported by the chat endpoint.
	ErrProvider = errors.New("correction provider error")
)

// Config holds the correction provider settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	OutputDir string
	Logger    *zap.Logger
}

// Corrector calls a chat-completions endpoint to correct OCR text.
type Corrector struct {
	client    *openai.Client
	model     string
	timeout   time.Duration
	outputDir string
	logger    *zap.Logger
}

// New creates a Corrector. An empty BaseURL uses the OpenAI default.
func New(cfg *Config) *Corrector {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	logger := utils.LoggerOrNop(cfg.Logger)
	return &Corrector{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		timeout:   cfg.Timeout,
		outputDir: cfg.OutputDir,
		logger:    logger,
	}
}

// Correct returns the model's correction of text.
func (c *Corrector) Correct(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPromptPrefix + text},
		},
	})
	if err != nil {
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response: %w", ErrProvider)
	}
	c.logger.Debug("correction completed",
		zap.String("model", c.model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return resp.Choices[0].Message.Content, nil
}

// CorrectFile corrects the body of a flagged result file and writes
// <output dir>/<flagged stem>_openai_corrected.txt. Returns the written path.
func (c *Corrector) CorrectFile(ctx context.Context, flaggedPath string) (string, error) {
	data, err := os.ReadFile(flaggedPath)
	if err != nil {
		return "", err
	}
	text := string(data)
	if _, body, err := triage.ParseHeader(text); err == nil {
		text = body
	}
	corrected, err := c.Correct(ctx, text)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.outputDir, 0755); err != nil {
		return "", fmt.Errorf("create corrections dir: %w", err)
	}
	out := filepath.Join(c.outputDir, models.Stem(flaggedPath)+CorrectedSuffix+".txt")
	if err := os.WriteFile(out, []byte(corrected), 0644); err != nil {
		return "", err
	}
	return out, nil
}

// parseAPIError extracts a readable message from the API error and wraps ErrProvider.
func parseAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("correction request: %w: %w", err, ErrProvider)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("correction API error %d: %s: %w", reqErr.HTTPStatusCode, detail, ErrProvider)
		}
		return fmt.Errorf("correction API error %d: %s: %w", reqErr.HTTPStatusCode, string(reqErr.Body), ErrProvider)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("correction API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, ErrProvider)
	}

	return fmt.Errorf("correction request failed: %v: %w", err, ErrProvider)
}

// extractDetail reads a "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
