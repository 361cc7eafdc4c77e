package handlers

import (
	"context"
	"fmt"
	"os"

	"promptsupport/internal/config"
	"promptsupport/internal/logger"
	"promptsupport/internal/oracle"
	"promptsupport/internal/pipeline"
	"promptsupport/internal/review"
	"promptsupport/internal/store"
)

// openStore opens the artifact store from config.
func openStore() (*store.Store, error) {
	dir := config.Get().Store.Directory
	if dir == "" {
		dir = ".promptsupport"
	}
	return store.New(dir)
}

// buildChain assembles the oracle provider chain from configured API keys.
// With no keys configured every stage runs its deterministic path.
func buildChain(ctx context.Context) *oracle.Chain {
	ai := config.GetAI()
	var providers []oracle.Provider

	if ai.Gemini.APIKey != "" {
		gemini, err := oracle.NewGemini(ctx, ai.Gemini.APIKey, ai.Gemini.Model)
		if err != nil {
			logger.Warn("gemini provider unavailable", "error", err)
		} else {
			providers = append(providers, gemini)
		}
	}
	if ai.OpenAI.APIKey != "" {
		openai, err := oracle.NewOpenAI(ai.OpenAI.APIKey, ai.OpenAI.Model)
		if err != nil {
			logger.Warn("openai provider unavailable", "error", err)
		} else {
			providers = append(providers, openai)
		}
	}
	if len(providers) == 0 {
		fmt.Fprintln(os.Stderr, "⚠️  No AI provider configured; using deterministic heuristics only")
	}

	return oracle.NewChain(ai.ProviderTimeout, providers...)
}

// buildApp wires the store, pipeline and review service.
func buildApp(ctx context.Context) (*store.Store, *pipeline.Pipeline, *review.Service, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	p, err := pipeline.Build(st, buildChain(ctx), config.Get())
	if err != nil {
		st.Close()
		return nil, nil, nil, fmt.Errorf("build pipeline: %w", err)
	}
	return st, p, review.NewService(st, p, p), nil
}
