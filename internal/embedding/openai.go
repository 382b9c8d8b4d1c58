package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultOpenAIMaxTokens is the input limit of the OpenAI embedding models.
const DefaultOpenAIMaxTokens = 8000

// OpenAI is an embeddings model backed by the OpenAI (or an OpenAI-compatible) API.
type OpenAI struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	maxTokens  int
	user       string
	logger     *zap.Logger
}

// OpenAIConfig holds the OpenAI provider settings.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // empty for api.openai.com
	Model   string
	// Dimensions is sent only when > 0 (text-embedding-3 models support shortening).
	Dimensions int
	MaxTokens  int
	User       string
	Logger     *zap.Logger
}

// NewOpenAI creates an OpenAI embeddings model.
func NewOpenAI(cfg *OpenAIConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultOpenAIMaxTokens
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAI{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		maxTokens:  maxTokens,
		user:       cfg.User,
		logger:     logger,
	}
}

// MaxTokens implements Model.
func (e *OpenAI) MaxTokens() int { return e.maxTokens }

// CreateEmbeddings implements Model. HTTP 429 maps to StatusRateLimited and other API errors to
// StatusError; network failures are returned as errors.
func (e *OpenAI) CreateEmbeddings(ctx context.Context, inputs []string) (*Response, error) {
	if len(inputs) == 0 {
		return &Response{Status: StatusSuccess, Output: [][]float64{}}, nil
	}
	req := openai.EmbeddingRequest{
		Input:          inputs,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return responseFromError(err)
	}
	if len(resp.Data) != len(inputs) {
		return &Response{
			Status:  StatusError,
			Message: fmt.Sprintf("expected %d embeddings, got %d", len(inputs), len(resp.Data)),
		}, nil
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	output := make([][]float64, len(data))
	for i, d := range data {
		output[i] = toFloat64(d.Embedding)
	}
	e.logger.Debug("embeddings created",
		zap.String("model", string(e.model)),
		zap.Int("inputs", len(inputs)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return &Response{Status: StatusSuccess, Output: output}, nil
}

// responseFromError maps API errors to a Response and passes transport errors through.
func responseFromError(err error) (*Response, error) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusResponse(apiErr.HTTPStatusCode, apiErr.Message), nil
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := extractDetail(reqErr.Body)
		if msg == "" {
			msg = string(reqErr.Body)
		}
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return statusResponse(reqErr.HTTPStatusCode, msg), nil
	}
	return nil, fmt.Errorf("embedding request failed: %w", err)
}

func statusResponse(code int, msg string) *Response {
	if msg == "" {
		msg = http.StatusText(code)
	}
	if code == http.StatusTooManyRequests {
		return &Response{Status: StatusRateLimited, Message: msg}
	}
	return &Response{Status: StatusError, Message: fmt.Sprintf("embedding API error %d: %s", code, msg)}
}

// extractDetail extracts the "detail" field from a JSON error body (used by some compatible APIs).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
