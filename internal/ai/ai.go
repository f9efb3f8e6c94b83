// Package ai is a thin client for the generative text provider behind the
// analyze and rewrite endpoints.
package ai

import (
	"context"
	"errors"
	"fmt"
)

var ErrEmptyCompletion = errors.New("ai: provider returned no content")

// Generator is what the HTTP layer needs from an AI provider.
type Generator interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error)
	Rewrite(ctx context.Context, req RewriteRequest) (*RewriteResult, error)
}

// AnalyzeRequest carries the extracted text of a proposal document.
type AnalyzeRequest struct {
	Content string
}

type AnalyzeResult struct {
	Analysis string
	Model    string
}

type RewriteRequest struct {
	Text        string
	Instruction string
}

type RewriteResult struct {
	Rewritten string
	Model     string
}

// ProviderError is a non-2xx answer from the provider.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("ai provider returned %d: %s", e.StatusCode, e.Message)
}
