// Package embedding provides embeddings models (OpenAI, ONNX, mock) and an LRU cache in front of them.
package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperjump/vectra/internal/metrics"
)

// Status is the outcome of an embeddings request.
type Status int

const (
	// StatusSuccess means Output holds one vector per input.
	StatusSuccess Status = iota
	// StatusError means the provider rejected the request; Message says why.
	StatusError
	// StatusRateLimited means the provider asked the caller to slow down.
	StatusRateLimited
)

var statusNames = map[Status]string{
	StatusSuccess:     "success",
	StatusError:       "error",
	StatusRateLimited: "rate_limited",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalJSON writes the status name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON reads a status name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for st, n := range statusNames {
		if n == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown embeddings status %q", name)
}

// Response is the result of CreateEmbeddings. Output is set only for StatusSuccess and is in
// input order; Message is set for the other statuses.
type Response struct {
	Status  Status      `json:"status"`
	Output  [][]float64 `json:"output,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Model creates embeddings for text.
//
// Provider-level outcomes (rejections, rate limiting) are reported through Response.Status;
// the error return is reserved for failures to reach the provider at all.
type Model interface {
	CreateEmbeddings(ctx context.Context, inputs []string) (*Response, error)
	// MaxTokens is the largest input, in tokens, the model accepts.
	MaxTokens() int
}

type instrumented struct {
	Model
	provider string
	metrics  *metrics.Embedding
}

// Instrument wraps m so every request is recorded in mt under provider.
func Instrument(m Model, provider string, mt *metrics.Embedding) Model {
	if mt == nil {
		return m
	}
	return &instrumented{Model: m, provider: provider, metrics: mt}
}

func (i *instrumented) CreateEmbeddings(ctx context.Context, inputs []string) (*Response, error) {
	start := time.Now()
	resp, err := i.Model.CreateEmbeddings(ctx, inputs)
	status := "failed"
	if err == nil {
		status = resp.Status.String()
	}
	i.metrics.ObserveRequest(i.provider, status, len(inputs), time.Since(start))
	return resp, err
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
