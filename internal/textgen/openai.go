// Package textgen implements the text-generation collaborator against an
// OpenAI-compatible chat-completions endpoint.
package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mkessler-dev/ledgermatch/internal/classify"
)

// Config holds client settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// DefaultConfig returns the settings used when the config file does not
// override them. Low temperature keeps classifications consistent.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.openai.com/v1",
		Model:       "gpt-4o",
		Temperature: 0.1,
		MaxTokens:   4096,
	}
}

// Client talks to the chat-completions API. It implements
// classify.TextGenerator and reports transport failures as
// *classify.TransportError so the retry layers can sort them.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a client, filling unset config fields with defaults.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("text generation API key is required")
	}

	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaults.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate sends one chat-completion request.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (classify.Response, error) {
	reqBody := chatRequest{
		Model:       c.config.Model,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return classify.Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return classify.Response{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures are worth retrying.
		return classify.Response{}, &classify.TransportError{Err: err, Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return classify.Response{}, &classify.TransportError{Err: err, Retryable: true}
	}

	if resp.StatusCode != http.StatusOK {
		return classify.Response{}, &classify.TransportError{
			Err:       fmt.Errorf("%s", apiErrorMessage(body)),
			Status:    resp.StatusCode,
			Retryable: classify.RetryableStatus(resp.StatusCode),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return classify.Response{}, &classify.TransportError{Err: fmt.Errorf("parsing response: %w", err), Retryable: false}
	}
	if len(parsed.Choices) == 0 {
		return classify.Response{}, &classify.TransportError{Err: fmt.Errorf("no choices in response"), Retryable: false}
	}

	choice := parsed.Choices[0]
	return classify.Response{
		Text:      choice.Message.Content,
		Truncated: choice.FinishReason == "length",
		Usage: classify.Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}

// apiErrorMessage pulls the service's error message out of a failure body,
// falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (%s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return string(body)
}
