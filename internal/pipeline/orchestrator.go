// Package pipeline sequences a generation request end to end: cache lookup,
// target validation, content fetch, description, and provider generation,
// relaying progress to the caller as an ordered event stream.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vizor/internal/analytics"
	"vizor/internal/cache"
	"vizor/internal/collab"
	"vizor/internal/domain"
	"vizor/internal/infra"
	"vizor/internal/metrics"
	"vizor/internal/provider"
)

// Mode selects how providers are invoked and which events the caller sees.
type Mode string

const (
	// ModeStream invokes streaming generation and forwards partial artifacts.
	ModeStream Mode = "stream"
	// ModeSingle invokes single-shot generation; the caller only sees the
	// terminal event.
	ModeSingle Mode = "single"
)

// Deps are the orchestrator's collaborators, injected at construction.
type Deps struct {
	Cache     *cache.Cache
	Registry  *provider.Registry
	Validator collab.Validator
	Fetcher   collab.Fetcher
	Describer collab.Describer
	Recorder  analytics.Recorder
	Metrics   *metrics.Pipeline
	Logger    infra.Logger
}

// Orchestrator drives the stage state machine for each request.
type Orchestrator struct {
	deps Deps
}

// New constructs an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Recorder == nil {
		deps.Recorder = analytics.NopRecorder{}
	}
	return &Orchestrator{deps: deps}
}

// Run executes the pipeline for one request and returns its event channel.
// Events arrive in stage order; the channel is closed after the terminal
// event, or as soon as cancellation is observed. Cancellation is cooperative:
// once the context is done the pipeline stops emitting, but in-flight
// collaborator calls are left to finish in the background and their results
// are discarded.
func (o *Orchestrator) Run(ctx context.Context, req domain.GenerationRequest, mode Mode) <-chan Event {
	events := make(chan Event, 8)
	go o.run(ctx, req, mode, events)
	return events
}

func (o *Orchestrator) run(ctx context.Context, req domain.GenerationRequest, mode Mode, events chan<- Event) {
	defer close(events)
	start := time.Now()
	logger := o.deps.Logger.With().
		Str("caller_id", req.CallerID).
		Str("target", req.Target).
		Logger()

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			logger.Debug().Str("stage", string(ev.Stage)).Msg("pipeline: caller gone, dropping remaining events")
			return false
		}
	}
	fail := func(provider string, err error, callerMsg string) {
		logger.Error().Err(err).Msg("pipeline: terminal failure")
		o.deps.Metrics.RequestOutcome(string(mode), "error")
		o.deps.Recorder.Record(analytics.Outcome{
			CallerID: req.CallerID,
			Target:   req.Target,
			Provider: provider,
			Status:   "error",
			ErrText:  err.Error(),
			Duration: time.Since(start),
		})
		emit(Event{Stage: StageError, Message: callerMsg, Err: callerMsg, Code: errorCode(err)})
	}
	succeed := func(providerName string, artifact []byte, mediaType, message string, cacheHit bool) {
		o.deps.Metrics.RequestOutcome(string(mode), "success")
		o.deps.Recorder.Record(analytics.Outcome{
			CallerID: req.CallerID,
			Target:   req.Target,
			Provider: providerName,
			Status:   "success",
			CacheHit: cacheHit,
			Duration: time.Since(start),
		})
		emit(Event{
			Stage:     StageCompleted,
			Message:   message,
			Artifact:  artifact,
			MediaType: mediaType,
			Provider:  providerName,
		})
	}

	// Resolve the preference once. An unknown preference is ignored rather
	// than rejected, so stale client configuration cannot break requests.
	preference := req.ProviderPreference
	if preference != "" {
		if _, ok := o.deps.Registry.Get(preference); !ok {
			logger.Warn().Str("preference", preference).Msg("pipeline: unknown provider preference ignored")
			preference = ""
		}
	}

	// checking_cache
	if !emit(Event{Stage: StageCheckingCache, Message: stageMessage(req.Locale, StageCheckingCache)}) {
		return
	}
	cacheProvider := preference
	if cacheProvider == "" {
		if names := o.deps.Registry.Names(); len(names) > 0 {
			cacheProvider = names[0]
		}
	}
	stageStart := time.Now()
	key := cache.KeyFor(req.Target, cacheProvider)
	if entry, ok := o.deps.Cache.Lookup(ctx, key); ok {
		o.deps.Metrics.ObserveCache(true)
		o.deps.Metrics.ObserveStage(string(StageCheckingCache), time.Since(stageStart))
		logger.Info().Str("provider", cacheProvider).Msg("pipeline: cache hit")
		succeed(cacheProvider, entry.Artifact, entry.MediaType, cachedMessage(req.Locale), true)
		return
	}
	o.deps.Metrics.ObserveCache(false)
	o.deps.Metrics.ObserveStage(string(StageCheckingCache), time.Since(stageStart))
	if ctx.Err() != nil {
		return
	}

	// Collaborators run on a detached context: once dispatched, a call is
	// never aborted, it runs to completion or failure and a cancelled
	// request simply discards the result at the next stage boundary.
	callCtx := context.WithoutCancel(ctx)

	// validating
	stageStart = time.Now()
	verdict, err := o.deps.Validator.Validate(callCtx, req.Target)
	o.deps.Metrics.ObserveStage(string(StageValidating), time.Since(stageStart))
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		fail("", fmt.Errorf("%w: validation: %v", domain.ErrCollaboratorFailure, err), "target validation is unavailable")
		return
	}
	if !verdict.Accepted || verdict.RiskTier == collab.RiskRejected {
		reason := verdict.Reason
		if reason == "" {
			reason = "target not allowed"
		}
		fail("", fmt.Errorf("%w: %s", domain.ErrRejectedTarget, reason), reason)
		return
	}
	validatingMsg := stageMessage(req.Locale, StageValidating)
	if verdict.RiskTier == collab.RiskCaution {
		validatingMsg = fmt.Sprintf("%s (warning: %s)", validatingMsg, verdict.Reason)
	}
	if !emit(Event{Stage: StageValidating, Message: validatingMsg}) {
		return
	}

	// fetching
	if !emit(Event{Stage: StageFetching, Message: stageMessage(req.Locale, StageFetching)}) {
		return
	}
	stageStart = time.Now()
	content, err := o.deps.Fetcher.Fetch(callCtx, req.Target)
	o.deps.Metrics.ObserveStage(string(StageFetching), time.Since(stageStart))
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		fail("", fmt.Errorf("%w: fetch: %v", domain.ErrCollaboratorFailure, err), "could not retrieve the target content")
		return
	}

	// describing
	if !emit(Event{Stage: StageDescribing, Message: stageMessage(req.Locale, StageDescribing)}) {
		return
	}
	stageStart = time.Now()
	description, err := o.deps.Describer.Describe(callCtx, req.Target, content)
	o.deps.Metrics.ObserveStage(string(StageDescribing), time.Since(stageStart))
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		fail("", fmt.Errorf("%w: describe: %v", domain.ErrCollaboratorFailure, err), "could not summarize the target content")
		return
	}
	if description == "" {
		fail("", fmt.Errorf("%w: describe returned empty result", domain.ErrCollaboratorFailure), "could not summarize the target content")
		return
	}

	// generating
	if !emit(Event{Stage: StageGenerating, Message: stageMessage(req.Locale, StageGenerating)}) {
		return
	}
	opts := provider.Options{Size: provider.Size(req.Size), Quality: provider.Quality(req.Quality)}
	chain := NewChain(o.deps.Registry.Chain(), logger, o.deps.Metrics).Reorder(preference)
	stageStart = time.Now()

	var finalBytes []byte
	var finalMedia, providerName string
	if mode == ModeStream {
		finalBytes, finalMedia, providerName, err = o.generateStreaming(ctx, chain, description, opts, req.Locale, emit)
	} else {
		var result *Result
		result, err = chain.Run(ctx, description, opts)
		if result != nil {
			finalBytes, finalMedia, providerName = result.Artifact.Bytes, result.Artifact.MediaType, result.Provider
		}
	}
	o.deps.Metrics.ObserveStage(string(StageGenerating), time.Since(stageStart))
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		fail(providerName, err, "generation failed on every provider")
		return
	}

	// Best-effort cache write; never blocks or fails the response.
	o.deps.Cache.Store(ctx, cache.KeyFor(req.Target, providerName), cache.Entry{
		Artifact:    finalBytes,
		MediaType:   finalMedia,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	})

	logger.Info().
		Str("provider", providerName).
		Int("bytes", len(finalBytes)).
		Dur("elapsed", time.Since(start)).
		Msg("pipeline: generation complete")
	succeed(providerName, finalBytes, finalMedia, stageMessage(req.Locale, StageCompleted), false)
}

// generateStreaming consumes the winning backend's partial stream, forwarding
// each partial to the caller. If the stream ends without an explicit final
// item, the last partial seen is promoted to the final artifact.
func (o *Orchestrator) generateStreaming(
	ctx context.Context,
	chain *Chain,
	prompt string,
	opts provider.Options,
	locale string,
	emit func(Event) bool,
) ([]byte, string, string, error) {
	stream, providerName, err := chain.RunStream(ctx, prompt, opts)
	if err != nil {
		return nil, "", "", err
	}

	var last *provider.Partial
	sawFinal := false
	for partial := range stream {
		if ctx.Err() != nil {
			return nil, "", providerName, ctx.Err()
		}
		p := partial
		last = &p
		if p.Final {
			sawFinal = true
		}
		ok := emit(Event{
			Stage:        StagePartial,
			Message:      stageMessage(locale, StagePartial),
			Artifact:     p.Bytes,
			MediaType:    p.MediaType,
			PartialIndex: p.Index,
			Provider:     providerName,
		})
		if !ok {
			return nil, "", providerName, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return nil, "", providerName, ctx.Err()
	}
	if last == nil {
		// RunStream guarantees at least one item, so this only trips if a
		// backend misbehaves after the peek.
		return nil, "", providerName, fmt.Errorf("%w: stream ended with no partials", domain.ErrEmptyStreamResult)
	}
	if !sawFinal {
		o.deps.Logger.Debug().
			Str("provider", providerName).
			Int("index", last.Index).
			Msg("pipeline: stream ended without final item, promoting last partial")
	}
	return last.Bytes, last.MediaType, providerName, nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRejectedTarget):
		return "rejected"
	case errors.Is(err, domain.ErrCollaboratorFailure):
		return "collaborator_failed"
	case errors.Is(err, domain.ErrAllProvidersFailed), errors.Is(err, domain.ErrEmptyStreamResult):
		return "providers_failed"
	default:
		return "internal"
	}
}
