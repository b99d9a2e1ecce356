// Package provider defines the capability contract shared by all generation
// backends and the registry the pipeline selects them from.
package provider

import (
	"context"

	"vizor/internal/infra"
)

// Size names a supported output dimension, e.g. "1024x1024".
type Size string

// Quality names a supported rendering quality tier.
type Quality string

// Descriptor declares what a generation backend supports. It is static per
// implementation and read-only.
type Descriptor struct {
	Name               string
	SupportedSizes     []Size
	SupportedQualities []Quality
	DefaultSize        Size
	DefaultQuality     Quality
	MaxPromptLength    int
}

// Options carries per-call rendering hints. Zero values mean "use the
// provider default".
type Options struct {
	Size    Size
	Quality Quality
}

// Artifact is a finished binary output.
type Artifact struct {
	Bytes     []byte
	MediaType string
}

// Partial is an intermediate rendering emitted during streaming generation.
// A later partial supersedes earlier ones for display purposes; consumers
// replace rather than append.
type Partial struct {
	Bytes     []byte
	MediaType string
	Index     int
	Final     bool
}

// Generator is the contract implemented by all generation backends.
//
// GenerateStream produces a finite, non-restartable sequence of partials on
// the returned channel, closed by the producer. The sequence either ends with
// a Final partial or ends without one, in which case the pipeline promotes
// the last partial seen. A sequence that yields nothing at all is an error
// upstream.
type Generator interface {
	Describe() Descriptor
	Generate(ctx context.Context, prompt string, opts Options) (*Artifact, error)
	GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan Partial, error)
}

// Clamp applies the uniform leniency policy every backend enforces before
// invocation: unsupported sizes and qualities fall back to the provider
// defaults, and over-long prompts are truncated. Malformed options degrade
// gracefully with a warning; only backend call failures raise errors.
func Clamp(d Descriptor, prompt string, opts Options, logger infra.Logger) (string, Options) {
	if opts.Size == "" {
		opts.Size = d.DefaultSize
	} else if !containsSize(d.SupportedSizes, opts.Size) {
		logger.Warn().
			Str("provider", d.Name).
			Str("size", string(opts.Size)).
			Str("default", string(d.DefaultSize)).
			Msg("provider: unsupported size, using default")
		opts.Size = d.DefaultSize
	}
	if opts.Quality == "" {
		opts.Quality = d.DefaultQuality
	} else if !containsQuality(d.SupportedQualities, opts.Quality) {
		logger.Warn().
			Str("provider", d.Name).
			Str("quality", string(opts.Quality)).
			Str("default", string(d.DefaultQuality)).
			Msg("provider: unsupported quality, using default")
		opts.Quality = d.DefaultQuality
	}
	if d.MaxPromptLength > 0 && len(prompt) > d.MaxPromptLength {
		logger.Warn().
			Str("provider", d.Name).
			Int("length", len(prompt)).
			Int("max", d.MaxPromptLength).
			Msg("provider: prompt truncated")
		prompt = prompt[:d.MaxPromptLength]
	}
	return prompt, opts
}

func containsSize(list []Size, v Size) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsQuality(list []Quality, v Quality) bool {
	for _, q := range list {
		if q == v {
			return true
		}
	}
	return false
}

// Registry holds the configured backends in registration order. Registration
// order is the default fallback order.
type Registry struct {
	order  []string
	byName map[string]Generator
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Generator)}
}

// Register adds a backend. Re-registering a name replaces the previous
// backend but keeps its position.
func (r *Registry) Register(g Generator) {
	name := g.Describe().Name
	if _, ok := r.byName[name]; !ok {
		r.order = append(r.order, name)
	}
	r.byName[name] = g
}

// Get returns the backend registered under name.
func (r *Registry) Get(name string) (Generator, bool) {
	g, ok := r.byName[name]
	return g, ok
}

// Chain returns the backends in registration order.
func (r *Registry) Chain() []Generator {
	out := make([]Generator, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns the registered backend names in order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
