package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAIClientConfig struct {
	APIKey       string
	BaseURL      string
	Organization string
	Project      string
	Timeout      time.Duration
	MaxRetries   int
	HTTPClient   *http.Client
}

type OpenRouterClientConfig struct {
	APIKey     string
	BaseURL    string
	SiteURL    string
	AppName    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// ChatClient talks to an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	provider    string
	apiKey      string
	baseURL     string
	timeout     time.Duration
	maxRetries  int
	backoffUnit time.Duration
	httpClient  *http.Client
	headers     map[string]string
}

func NewOpenAIClient(config OpenAIClientConfig) *ChatClient {
	headers := map[string]string{}
	if org := strings.TrimSpace(config.Organization); org != "" {
		headers["OpenAI-Organization"] = org
	}
	if project := strings.TrimSpace(config.Project); project != "" {
		headers["OpenAI-Project"] = project
	}
	return newChatClient("openai", config.APIKey, firstNonEmpty(config.BaseURL, "https://api.openai.com/v1"),
		config.Timeout, config.MaxRetries, config.HTTPClient, headers)
}

func NewOpenRouterClient(config OpenRouterClientConfig) *ChatClient {
	headers := map[string]string{
		"X-Title": firstNonEmpty(config.AppName, "Assessment Dispatch"),
	}
	if site := strings.TrimSpace(config.SiteURL); site != "" {
		headers["HTTP-Referer"] = site
	}
	return newChatClient("openrouter", config.APIKey, firstNonEmpty(config.BaseURL, "https://openrouter.ai/api/v1"),
		config.Timeout, config.MaxRetries, config.HTTPClient, headers)
}

func newChatClient(
	provider, apiKey, baseURL string,
	timeout time.Duration,
	maxRetries int,
	httpClient *http.Client,
	headers map[string]string,
) *ChatClient {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &ChatClient{
		provider:    provider,
		apiKey:      strings.TrimSpace(apiKey),
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		timeout:     timeout,
		maxRetries:  maxRetries,
		backoffUnit: 500 * time.Millisecond,
		httpClient:  httpClient,
		headers:     headers,
	}
}

func (c *ChatClient) Provider() string {
	return c.provider
}

func (c *ChatClient) Available() bool {
	return c.apiKey != ""
}

func (c *ChatClient) Generate(ctx context.Context, request GenerateRequest) (GenerateResult, error) {
	if !c.Available() {
		return GenerateResult{}, fmt.Errorf("%s: %w", c.provider, ErrProviderUnavailable)
	}
	if strings.TrimSpace(request.Model) == "" {
		return GenerateResult{}, errors.New("model is required")
	}
	if strings.TrimSpace(request.Input) == "" {
		return GenerateResult{}, errors.New("input is required")
	}

	messages := make([]map[string]string, 0, 2)
	if instructions := strings.TrimSpace(request.Instructions); instructions != "" {
		messages = append(messages, map[string]string{"role": "system", "content": instructions})
	}
	messages = append(messages, map[string]string{"role": "user", "content": request.Input})

	payload := map[string]any{
		"model":       request.Model,
		"messages":    messages,
		"temperature": request.Temperature,
	}
	if request.MaxOutputTokens > 0 {
		payload["max_tokens"] = request.MaxOutputTokens
	}
	if request.JSONResponse {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("marshal %s payload: %w", c.provider, err)
	}

	return retry(ctx, c.maxRetries, c.backoffUnit, func() (GenerateResult, error) {
		return c.callChatCompletions(ctx, encoded, request.Model)
	})
}

func (c *ChatClient) callChatCompletions(ctx context.Context, payload []byte, requestedModel string) (GenerateResult, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpRequest, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return GenerateResult{}, fmt.Errorf("create %s request: %w", c.provider, err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Accept", "application/json")
	for key, value := range c.headers {
		httpRequest.Header.Set(key, value)
	}

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return GenerateResult{}, fmt.Errorf("%s timeout: %w", c.provider, err)
		}
		return GenerateResult{}, fmt.Errorf("%s transport error: %w", c.provider, err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("read %s body: %w", c.provider, err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		message := strings.TrimSpace(string(body))
		if len(message) > 700 {
			message = message[:700]
		}
		return GenerateResult{}, &providerHTTPError{
			Provider:   c.provider,
			StatusCode: httpResponse.StatusCode,
			Message:    message,
		}
	}

	var raw chatCompletionsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return GenerateResult{}, fmt.Errorf("decode %s response: %w", c.provider, err)
	}

	text := raw.text()
	if text == "" {
		return GenerateResult{}, fmt.Errorf("%s response without text output", c.provider)
	}

	return GenerateResult{
		Text:    text,
		ModelID: firstNonEmpty(raw.Model, requestedModel),
		Usage: TokenUsage{
			InputTokens:  raw.Usage.PromptTokens,
			OutputTokens: raw.Usage.CompletionTokens,
			TotalTokens:  raw.Usage.TotalTokens,
		},
	}, nil
}

type chatCompletionsResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (r chatCompletionsResponse) text() string {
	if len(r.Choices) == 0 {
		return ""
	}
	switch typed := r.Choices[0].Message.Content.(type) {
	case string:
		return strings.TrimSpace(typed)
	case []any:
		fragments := make([]string, 0, len(typed))
		for _, item := range typed {
			fragment, ok := item.(map[string]any)
			if !ok {
				continue
			}
			textValue, _ := fragment["text"].(string)
			if strings.TrimSpace(textValue) == "" {
				continue
			}
			fragments = append(fragments, strings.TrimSpace(textValue))
		}
		return strings.TrimSpace(strings.Join(fragments, "\n"))
	default:
		return ""
	}
}
