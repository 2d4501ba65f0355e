package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/gradelens/gradelens/internal/config"
	"github.com/gradelens/gradelens/internal/services/regrade"
	"github.com/gradelens/gradelens/pkg/logger"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// LLMClassifier scores staff responses against candidate outcome labels by
// prompting a language model. It implements regrade.Classifier.
type LLMClassifier struct {
	cfg *config.ClassifierConfig
}

func NewLLMClassifier(cfg *config.ClassifierConfig) *LLMClassifier {
	return &LLMClassifier{cfg: cfg}
}

// Classify scores each text against every candidate label. Results come
// back in input order, each ranking sorted by descending score.
func (s *LLMClassifier) Classify(ctx context.Context, texts, labels []string, hypothesisTemplate string) ([]regrade.Ranking, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("no candidate labels given")
	}

	logger.Infof("[Classifier] Scoring %d texts against %d labels via %s (model: %s)",
		len(texts), len(labels), s.cfg.Provider, s.cfg.Model)

	rankings := make([]regrade.Ranking, 0, len(texts))
	for i, text := range texts {
		prompt := buildClassifyPrompt(text, labels, hypothesisTemplate)

		content, err := s.callLLM(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("classify text %d/%d: %w", i+1, len(texts), err)
		}

		ranking, err := parseRanking(content, labels)
		if err != nil {
			return nil, fmt.Errorf("classify text %d/%d: %w", i+1, len(texts), err)
		}
		rankings = append(rankings, ranking)
	}

	return rankings, nil
}

// buildClassifyPrompt renders the zero-shot instruction for one text. The
// hypothesis template uses {} as the placeholder for a candidate label.
func buildClassifyPrompt(text string, labels []string, hypothesisTemplate string) string {
	var b strings.Builder
	b.WriteString("You are a zero-shot text classifier.\n")
	b.WriteString("Given the passage below, estimate for each candidate label the probability that the corresponding hypothesis is true.\n\n")
	b.WriteString("Passage:\n")
	b.WriteString(text)
	b.WriteString("\n\nHypotheses:\n")
	for _, label := range labels {
		hypothesis := strings.ReplaceAll(hypothesisTemplate, "{}", label)
		fmt.Fprintf(&b, "- %s: %q\n", label, hypothesis)
	}
	b.WriteString("\nRespond with only a JSON object mapping each label to a probability between 0 and 1, with probabilities summing to 1. No other text.\n")
	return b.String()
}

// parseRanking extracts the label-to-score JSON object from a model reply
// and returns the scores sorted descending. Scores are clamped to [0, 1]
// and renormalized so they sum to 1.
func parseRanking(content string, labels []string) (regrade.Ranking, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object in classifier reply: %.120q", content)
	}

	var scores map[string]float64
	if err := json.Unmarshal([]byte(content[start:end+1]), &scores); err != nil {
		return nil, fmt.Errorf("malformed classifier reply: %w", err)
	}

	ranking := make(regrade.Ranking, 0, len(labels))
	var sum float64
	for _, label := range labels {
		score, ok := scores[label]
		if !ok {
			return nil, fmt.Errorf("classifier reply missing label %q", label)
		}
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		sum += score
		ranking = append(ranking, regrade.LabelScore{Label: label, Score: score})
	}

	if sum > 0 {
		for i := range ranking {
			ranking[i].Score /= sum
		}
	} else {
		// Degenerate reply, treat all labels as equally likely
		for i := range ranking {
			ranking[i].Score = 1 / float64(len(ranking))
		}
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Score > ranking[j].Score
	})
	return ranking, nil
}

// callLLM dispatches to the appropriate provider-specific function based on
// the configured provider.
func (s *LLMClassifier) callLLM(ctx context.Context, prompt string) (string, error) {
	switch s.cfg.Provider {
	case "anthropic":
		return s.callAnthropic(ctx, prompt)
	case "ollama":
		return s.callOllama(ctx, prompt)
	case "gemini":
		return s.callGemini(ctx, prompt)
	case "azure":
		return s.callAzure(ctx, prompt)
	default:
		// openai and other OpenAI-compatible services
		return s.callOpenAI(ctx, prompt)
	}
}

// callOpenAI handles OpenAI and OpenAI-compatible APIs (including custom endpoints)
func (s *LLMClassifier) callOpenAI(ctx context.Context, prompt string) (string, error) {
	clientConfig := openai.DefaultConfig(s.cfg.APIKey)
	if s.cfg.BaseURL != "" {
		clientConfig.BaseURL = s.cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

// callAnthropic handles Anthropic Claude API using the native SDK
func (s *LLMClassifier) callAnthropic(ctx context.Context, prompt string) (string, error) {
	client := anthropic.NewClient(
		option.WithAPIKey(s.cfg.APIKey),
	)

	model := s.cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	return content, nil
}

// callOllama handles Ollama API using the native SDK
func (s *LLMClassifier) callOllama(ctx context.Context, prompt string) (string, error) {
	baseURL := s.cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	model := s.cfg.Model
	if model == "" {
		model = "llama3"
	}

	var content strings.Builder
	err = client.Chat(ctx, &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{Role: "user", Content: prompt},
		},
		Options: map[string]interface{}{
			"temperature": 0,
		},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("Ollama API error: %w", err)
	}

	return content.String(), nil
}

// callGemini handles Google Gemini API using the native SDK
func (s *LLMClassifier) callGemini(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: s.cfg.APIKey,
	})
	if err != nil {
		return "", fmt.Errorf("Gemini client error: %w", err)
	}

	model := s.cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	return resp.Text(), nil
}

// callAzure handles Azure OpenAI API using special configuration
func (s *LLMClassifier) callAzure(ctx context.Context, prompt string) (string, error) {
	// Azure requires BaseURL format: https://{resource-name}.openai.azure.com
	// Model field is used as deployment name
	clientConfig := openai.DefaultAzureConfig(s.cfg.APIKey, s.cfg.BaseURL)
	client := openai.NewClientWithConfig(clientConfig)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("Azure OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from Azure OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

var _ regrade.Classifier = (*LLMClassifier)(nil)
