package oracle

import "context"

// Provider is a minimal completion client for LLM-backed judging.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}
