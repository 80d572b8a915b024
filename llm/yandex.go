// Package llm provides completion backends for bot replies.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// YandexGPT is a completion client for the Yandex foundation-models API.
type YandexGPT struct {
	apiKey     string
	folderID   string
	baseURL    string
	model      string
	httpClient *http.Client
}

// YandexOption configures the Yandex client.
type YandexOption func(*YandexGPT)

// WithAPIKey sets the API key.
func WithAPIKey(key string) YandexOption {
	return func(y *YandexGPT) {
		y.apiKey = key
	}
}

// WithFolderID sets the cloud folder that owns the model.
func WithFolderID(id string) YandexOption {
	return func(y *YandexGPT) {
		y.folderID = id
	}
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) YandexOption {
	return func(y *YandexGPT) {
		y.baseURL = url
	}
}

// WithModel sets the model name used to build the model URI.
func WithModel(model string) YandexOption {
	return func(y *YandexGPT) {
		y.model = model
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) YandexOption {
	return func(y *YandexGPT) {
		y.httpClient = client
	}
}

// Default Yandex configuration values
const (
	DefaultYandexTimeout = 60 * time.Second
	DefaultYandexModel   = "yandexgpt"
	DefaultYandexBaseURL = "https://llm.api.cloud.yandex.net"
)

// NewYandexGPT creates a new Yandex GPT client. The API key and folder ID
// default to the YANDEX_API_KEY and YANDEX_FOLDER_ID environment variables.
func NewYandexGPT(opts ...YandexOption) *YandexGPT {
	y := &YandexGPT{
		apiKey:   os.Getenv("YANDEX_API_KEY"),
		folderID: os.Getenv("YANDEX_FOLDER_ID"),
		baseURL:  DefaultYandexBaseURL,
		model:    DefaultYandexModel,
		httpClient: &http.Client{
			Timeout: DefaultYandexTimeout,
		},
	}

	for _, opt := range opts {
		opt(y)
	}

	return y
}

// completionRequest is the API request format.
type completionRequest struct {
	ModelURI          string            `json:"modelUri"`
	CompletionOptions completionOptions `json:"completionOptions"`
	Messages          []completionMsg   `json:"messages"`
}

type completionOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

type completionMsg struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// completionResponse is the API response format.
type completionResponse struct {
	Result struct {
		Alternatives []struct {
			Message struct {
				Role string `json:"role"`
				Text string `json:"text"`
			} `json:"message"`
			Status string `json:"status"`
		} `json:"alternatives"`
		Usage struct {
			InputTextTokens  string `json:"inputTextTokens"`
			CompletionTokens string `json:"completionTokens"`
			TotalTokens      string `json:"totalTokens"`
		} `json:"usage"`
	} `json:"result"`
}

// Complete sends prompt and systemPrompt to the completion API and returns
// the reply text.
func (y *YandexGPT) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	req := completionRequest{
		ModelURI: fmt.Sprintf("gpt://%s/%s", y.folderID, y.model),
		CompletionOptions: completionOptions{
			Temperature: 0.7,
			MaxTokens:   2000,
		},
		Messages: []completionMsg{
			{Role: "system", Text: systemPrompt},
			{Role: "user", Text: prompt},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		y.baseURL+"/foundationModels/v1/completion", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Api-Key "+y.apiKey)

	httpResp, err := y.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp completionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Result.Alternatives) == 0 {
		return "", fmt.Errorf("empty completion result")
	}

	return resp.Result.Alternatives[0].Message.Text, nil
}
