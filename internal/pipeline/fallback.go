package pipeline

import (
	"context"
	"fmt"

	"vizor/internal/domain"
	"vizor/internal/infra"
	"vizor/internal/metrics"
	"vizor/internal/provider"
)

// Chain attempts generation across an ordered set of backends, returning the
// first success. Each backend is tried exactly once per traversal; there is
// no per-backend retry.
type Chain struct {
	providers []provider.Generator
	logger    infra.Logger
	metrics   *metrics.Pipeline
}

// NewChain builds a chain over the given backends, in order.
func NewChain(providers []provider.Generator, logger infra.Logger, m *metrics.Pipeline) *Chain {
	return &Chain{providers: providers, logger: logger, metrics: m}
}

// Reorder returns a chain with the named backend moved to the front. The
// relative order of the rest is preserved. An empty or unknown name leaves
// the chain unchanged.
func (c *Chain) Reorder(preference string) *Chain {
	if preference == "" {
		return c
	}
	reordered := make([]provider.Generator, 0, len(c.providers))
	var preferred provider.Generator
	for _, g := range c.providers {
		if g.Describe().Name == preference && preferred == nil {
			preferred = g
			continue
		}
		reordered = append(reordered, g)
	}
	if preferred == nil {
		return c
	}
	return &Chain{
		providers: append([]provider.Generator{preferred}, reordered...),
		logger:    c.logger,
		metrics:   c.metrics,
	}
}

// Result is a finished artifact tagged with the backend that produced it.
type Result struct {
	Artifact *provider.Artifact
	Provider string
}

// Run invokes Generate on each backend in order and returns the first
// success. When every backend fails, the returned error carries only the
// last recorded failure; earlier ones are logged.
//
// Cancellation is observed between attempts only. An attempt already in
// flight runs to completion or failure on a detached context and its result
// is discarded; the pipeline never aborts a backend call midway.
func (c *Chain) Run(ctx context.Context, prompt string, opts provider.Options) (*Result, error) {
	callCtx := context.WithoutCancel(ctx)
	var lastErr error
	var lastName string
	for _, g := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := g.Describe().Name
		artifact, err := g.Generate(callCtx, prompt, opts)
		if err != nil {
			c.metrics.ProviderAttempt(name, "failure")
			c.logger.Warn().Err(err).Str("provider", name).Msg("fallback: backend failed, trying next")
			lastErr, lastName = err, name
			continue
		}
		c.metrics.ProviderAttempt(name, "success")
		return &Result{Artifact: artifact, Provider: name}, nil
	}
	return nil, c.exhausted(lastName, lastErr)
}

// RunStream invokes GenerateStream on each backend in order. The first
// backend that yields at least one partial wins: its stream is handed back
// with the first partial replayed. A backend whose stream ends with no items
// counts as a failure and the chain moves on.
func (c *Chain) RunStream(ctx context.Context, prompt string, opts provider.Options) (<-chan provider.Partial, string, error) {
	callCtx := context.WithoutCancel(ctx)
	var lastErr error
	var lastName string
	for _, g := range c.providers {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		name := g.Describe().Name
		stream, err := g.GenerateStream(callCtx, prompt, opts)
		if err != nil {
			c.metrics.ProviderAttempt(name, "failure")
			c.logger.Warn().Err(err).Str("provider", name).Msg("fallback: backend failed, trying next")
			lastErr, lastName = err, name
			continue
		}
		first, ok := <-stream
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, "", err
			}
			c.metrics.ProviderAttempt(name, "empty")
			c.logger.Warn().Str("provider", name).Msg("fallback: backend stream yielded nothing, trying next")
			lastErr, lastName = domain.ErrEmptyStreamResult, name
			continue
		}
		c.metrics.ProviderAttempt(name, "success")
		out := make(chan provider.Partial)
		go func() {
			defer close(out)
			// The backend produces on a detached context, so once the
			// caller goes away the rest of its sequence must be drained
			// and discarded to let the producer finish.
			select {
			case out <- first:
			case <-ctx.Done():
				for range stream {
				}
				return
			}
			for p := range stream {
				select {
				case out <- p:
				case <-ctx.Done():
					for range stream {
					}
					return
				}
			}
		}()
		return out, name, nil
	}
	return nil, "", c.exhausted(lastName, lastErr)
}

func (c *Chain) exhausted(lastName string, lastErr error) error {
	if lastErr == nil {
		return fmt.Errorf("%w: no backends configured", domain.ErrAllProvidersFailed)
	}
	return fmt.Errorf("%w: last failure from %s: %v", domain.ErrAllProvidersFailed, lastName, lastErr)
}
