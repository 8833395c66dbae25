package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/fedeforai/frostdesk-core-sub003/internal/models"
)

// GPTResponse is the JSON verdict requested from the model.
type GPTResponse struct {
	Relevant            bool    `json:"relevant"`
	RelevanceConfidence float64 `json:"relevance_confidence"`
	RelevanceReason     string  `json:"relevance_reason"`
	Intent              string  `json:"intent"`
	IntentConfidence    float64 `json:"intent_confidence"`
}

// GPTClassifier asks an OpenAI chat model for the verdict and falls back to
// another classifier whenever the model cannot produce a valid one.
type GPTClassifier struct {
	client    *openai.Client
	model     string
	maxTokens int
	fallback  Classifier
	logger    *zap.Logger
}

// NewGPTClassifier creates a classifier backed by the OpenAI API.
// baseURL may be empty to use the public endpoint.
func NewGPTClassifier(apiKey, baseURL, model string, maxTokens int, fallback Classifier, logger *zap.Logger) *GPTClassifier {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if fallback == nil {
		fallback = NewRuleClassifier()
	}
	return &GPTClassifier{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: maxTokens,
		fallback:  fallback,
		logger:    logger,
	}
}

// ModelID returns the identifier recorded in snapshots for model verdicts.
func (c *GPTClassifier) ModelID() string {
	return "openai:" + c.model
}

// Classify implements Classifier.
func (c *GPTClassifier) Classify(ctx context.Context, in Input) (Result, error) {
	prompt := fmt.Sprintf(`You triage customer messages sent to a ski and snowboard instructor.
Decide whether the message is about lessons, bookings or the instructor's services, and what the customer wants.

Return only a JSON object with this structure:
{
    "relevant": true,
    "relevance_confidence": 0.0,
    "relevance_reason": "OUT_OF_DOMAIN | SMALL_TALK | SPAM | empty when relevant",
    "intent": "NEW_BOOKING | RESCHEDULE | CANCEL | INFO_REQUEST | empty when not relevant",
    "intent_confidence": 0.0
}

Language hint: %s
Message: %s`, languageHint(in.Language), in.Text)

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens: c.maxTokens,
			// Temperature is omitempty in go-openai; zero would fall back to the API default.
			Temperature: math.SmallestNonzeroFloat32,
		},
	)
	if err != nil {
		c.logger.Error("Failed to get GPT response", zap.Error(err))
		return c.fallback.Classify(ctx, in)
	}
	if len(resp.Choices) == 0 {
		c.logger.Error("GPT response has no choices")
		return c.fallback.Classify(ctx, in)
	}

	var gptResponse GPTResponse
	response := strings.TrimSpace(resp.Choices[0].Message.Content)
	response = strings.TrimSuffix(strings.TrimPrefix(response, "```json"), "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(response)), &gptResponse); err != nil {
		c.logger.Error("Failed to parse GPT response",
			zap.Error(err),
			zap.String("response", response))
		return c.fallback.Classify(ctx, in)
	}

	result, err := c.toResult(gptResponse)
	if err != nil {
		c.logger.Warn("GPT verdict outside contract",
			zap.Error(err),
			zap.String("response", response))
		return c.fallback.Classify(ctx, in)
	}
	return result, nil
}

func (c *GPTClassifier) toResult(r GPTResponse) (Result, error) {
	if !r.Relevant {
		reason := models.RelevanceReason(strings.ToUpper(strings.TrimSpace(r.RelevanceReason)))
		if !reason.Valid() {
			return Result{}, fmt.Errorf("unknown relevance reason %q", r.RelevanceReason)
		}
		return Result{
			Relevant:            false,
			RelevanceConfidence: clamp(r.RelevanceConfidence),
			RelevanceReason:     reason,
			ModelID:             c.ModelID(),
		}, nil
	}

	intent := models.Intent(strings.ToUpper(strings.TrimSpace(r.Intent)))
	if !intent.Valid() {
		return Result{}, fmt.Errorf("unknown intent %q", r.Intent)
	}
	confidence := clamp(r.IntentConfidence)
	return Result{
		Relevant:            true,
		RelevanceConfidence: clamp(r.RelevanceConfidence),
		Intent:              intent,
		IntentConfidence:    &confidence,
		ModelID:             c.ModelID(),
	}, nil
}

func languageHint(lang string) string {
	if lang == "" {
		return "unknown"
	}
	return lang
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
