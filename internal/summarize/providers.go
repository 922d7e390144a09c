package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hpungsan/keep/internal/config"
)

// --- Ollama Provider ---

// OllamaSummarizer uses a local Ollama chat model.
type OllamaSummarizer struct {
	baseURL string
	model   string
	client  *http.Client
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}

// NewOllamaSummarizer creates a summarizer backed by Ollama's chat API.
func NewOllamaSummarizer(baseURL, model string, timeout time.Duration) *OllamaSummarizer {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaSummarizer{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *OllamaSummarizer) Summarize(ctx context.Context, content, collectionContext string) (string, error) {
	body, _ := json.Marshal(ollamaChatRequest{
		Model: s.model,
		Messages: []ollamaChatMessage{
			{Role: "system", Content: systemFor(collectionContext)},
			{Role: "user", Content: BuildPrompt(clip(content), collectionContext)},
		},
		Stream: false,
	})
	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama error %d: %s", resp.StatusCode, string(b))
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return StripPreamble(result.Message.Content), nil
}

// --- OpenAI-compatible Provider ---

// OpenAISummarizer uses any OpenAI-compatible chat completion API.
type OpenAISummarizer struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type openaiChatRequest struct {
	Model       string              `json:"model"`
	Messages    []ollamaChatMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message ollamaChatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenAISummarizer creates a summarizer for an OpenAI-compatible API.
func NewOpenAISummarizer(baseURL, apiKey, model string, timeout time.Duration) *OpenAISummarizer {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAISummarizer{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, content, collectionContext string) (string, error) {
	body, _ := json.Marshal(openaiChatRequest{
		Model: s.model,
		Messages: []ollamaChatMessage{
			{Role: "system", Content: systemFor(collectionContext)},
			{Role: "user", Content: BuildPrompt(clip(content), collectionContext)},
		},
		MaxTokens:   200,
		Temperature: 0.3,
	})
	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai error %d: %s", resp.StatusCode, string(b))
	}

	var result openaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return StripPreamble(result.Choices[0].Message.Content), nil
}

// --- Factory ---

// NewFromConfig creates a summarizer from configuration. Returns nil
// when no provider is bound; long documents then keep their truncation
// placeholder summaries.
func NewFromConfig(cfg *config.Config) Summarizer {
	timeout := time.Duration(cfg.LLMTimeoutSecs) * time.Second
	model := cfg.Summarization.Model

	switch cfg.Summarization.Name {
	case "ollama":
		if model == "" {
			model = "llama3.2"
		}
		return NewOllamaSummarizer(cfg.Summarization.BaseURL, model, timeout)
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		return NewOpenAISummarizer(cfg.Summarization.BaseURL, key, model, timeout)
	default:
		return nil // summarization disabled
	}
}
