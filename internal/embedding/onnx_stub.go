//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

// ONNXConfig holds the local ONNX model settings.
type ONNXConfig struct {
	ModelPath  string
	Dimensions int
	MaxTokens  int
}

// ONNX stub type when built without CGO (see onnx.go for real implementation).
type ONNX struct{}

// NewONNX returns an error when built without CGO (ONNX not available).
func NewONNX(_ ONNXConfig) (*ONNX, error) {
	return nil, errors.New("ONNX embeddings require CGO; build with CGO_ENABLED=1 and onnxruntime")
}

// MaxTokens implements Model.
func (e *ONNX) MaxTokens() int { return 0 }

// CreateEmbeddings implements Model.
func (e *ONNX) CreateEmbeddings(context.Context, []string) (*Response, error) {
	return nil, errors.New("ONNX embeddings are not available in this build")
}

// Close is a no-op.
func (e *ONNX) Close() error { return nil }
