package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/medrag/internal/config"
)

// BuildGenerator creates the configured generator chain. It returns nil
// when no generator is configured.
func BuildGenerator(cfg config.AIConfig) (IGenerator, error) {
	providers := indexProviders(cfg.Providers)
	entries := make([]GeneratorEntry, 0, len(cfg.Generator))
	for _, item := range cfg.Generator {
		p, ok := providers[item.Provider]
		if !ok {
			return nil, fmt.Errorf("unknown ai provider reference: %s", item.Provider)
		}
		provider, err := NewProvider(p.Type, p.Data)
		if err != nil {
			return nil, fmt.Errorf("init generator %s: %w", item.Provider, err)
		}
		entries = append(entries, GeneratorEntry{
			Name:      item.Provider + ":" + item.Model,
			Generator: WithGenerateTimeout(NewGenerator(provider, item.Model), seconds(cfg.Timeout)),
		})
	}
	return NewGroupGenerator(entries), nil
}

func BuildEmbedder(cfg config.AIConfig) (IEmbedder, error) {
	providers := indexProviders(cfg.Providers)
	entries := make([]EmbedderEntry, 0, len(cfg.Embedder))
	for _, item := range cfg.Embedder {
		p, ok := providers[item.Provider]
		if !ok {
			return nil, fmt.Errorf("unknown ai provider reference: %s", item.Provider)
		}
		provider, err := NewEmbedProvider(p.Type, p.Data)
		if err != nil {
			return nil, fmt.Errorf("init embedder %s: %w", item.Provider, err)
		}
		entries = append(entries, EmbedderEntry{
			Name:     item.Provider + ":" + item.Model,
			Embedder: WithEmbedTimeout(NewEmbedder(provider, item.Model), seconds(cfg.Timeout)),
		})
	}
	e := NewGroupEmbedder(entries)
	if e == nil {
		return nil, fmt.Errorf("ai.embedder is required")
	}
	return e, nil
}

func indexProviders(items []config.AIProviderConfig) map[string]config.AIProviderConfig {
	out := make(map[string]config.AIProviderConfig, len(items))
	for _, item := range items {
		out[item.Name] = item
	}
	return out
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func WithGenerateTimeout(g IGenerator, timeout time.Duration) IGenerator {
	if g == nil || timeout <= 0 {
		return g
	}
	return &timeoutGenerator{next: g, timeout: timeout}
}

func WithEmbedTimeout(e IEmbedder, timeout time.Duration) IEmbedder {
	if e == nil || timeout <= 0 {
		return e
	}
	return &timeoutEmbedder{next: e, timeout: timeout}
}

type timeoutGenerator struct {
	next    IGenerator
	timeout time.Duration
}

func (t *timeoutGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Generate(ctx, req)
}

type timeoutEmbedder struct {
	next    IEmbedder
	timeout time.Duration
}

func (t *timeoutEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Embed(ctx, texts, taskType)
}

func (t *timeoutEmbedder) ModelName() string {
	return t.next.ModelName()
}
