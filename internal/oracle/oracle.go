// Package oracle is the completion-oracle boundary of the pipeline. A
// request is a (system-instructions, user-payload) pair with a strict JSON
// response contract; providers are tried in order with a per-provider
// timeout, and a schema-invalid response is treated identically to a
// transport failure. Callers keep a deterministic stand-in of their own for
// when the whole chain is exhausted, so every stage stays a total function.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"promptsupport/internal/logger"
)

// ErrExhausted is returned when every provider in the chain failed or
// produced schema-invalid output.
var ErrExhausted = errors.New("oracle: all providers failed")

// Request is one completion call.
type Request struct {
	Stage  string        // Stage tag, used for logging and stubs
	System string        // System instructions
	User   string        // Size-bounded structural preview, never a full raw document
	Schema *genai.Schema // Structured-output schema for providers that support it
}

// Provider is a single text-completion backend returning raw JSON.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (json.RawMessage, error)
}

// Chain tries providers in order. Each call gets its own timeout; the chain
// never trusts a response that does not decode into the caller's type.
type Chain struct {
	providers []Provider
	timeout   time.Duration
}

// NewChain builds a provider chain. A zero timeout defaults to 60s.
func NewChain(timeout time.Duration, providers ...Provider) *Chain {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Chain{providers: providers, timeout: timeout}
}

// Providers returns the names of the chained providers, in order.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Complete runs the request through the chain and decodes the first
// schema-valid response into out. It returns the name of the provider that
// answered, or ErrExhausted wrapping the last failure.
func (c *Chain) Complete(ctx context.Context, req Request, out any) (string, error) {
	if len(c.providers) == 0 {
		return "", ErrExhausted
	}

	var last error
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		raw, err := p.Complete(callCtx, req)
		cancel()
		if err != nil {
			logger.Warn("oracle provider failed", "stage", req.Stage, "provider", p.Name(), "error", err.Error())
			last = err
			continue
		}

		cleaned, err := CleanJSON(raw)
		if err != nil {
			logger.Warn("oracle response not valid JSON", "stage", req.Stage, "provider", p.Name(), "error", err.Error())
			last = err
			continue
		}

		if err := json.Unmarshal(cleaned, out); err != nil {
			// Schema-invalid output is a provider failure, not a caller error.
			logger.Warn("oracle response failed schema decode", "stage", req.Stage, "provider", p.Name(), "error", err.Error())
			last = fmt.Errorf("decode %s response from %s: %w", req.Stage, p.Name(), err)
			continue
		}

		logger.Debug("oracle response accepted", "stage", req.Stage, "provider", p.Name())
		return p.Name(), nil
	}

	return "", fmt.Errorf("%w: %v", ErrExhausted, last)
}
