package provider

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"vizor/internal/infra"
)

const inkStreamPasses = 2

// Ink is a self-contained backend that always renders locally. It exists so
// the fallback chain has a second, differently-shaped backend to land on when
// the hosted one is unavailable.
type Ink struct {
	logger     infra.Logger
	descriptor Descriptor
}

// NewInk constructs the Ink backend.
func NewInk(logger *infra.Logger) *Ink {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	return &Ink{
		logger: l,
		descriptor: Descriptor{
			Name:               "ink",
			SupportedSizes:     []Size{"512x512", "768x768", "1024x1024"},
			SupportedQualities: []Quality{"draft", "standard"},
			DefaultSize:        "768x768",
			DefaultQuality:     "draft",
			MaxPromptLength:    500,
		},
	}
}

// Describe returns the static capability descriptor.
func (p *Ink) Describe() Descriptor { return p.descriptor }

// Generate produces a single finished artifact.
func (p *Ink) Generate(ctx context.Context, prompt string, opts Options) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt, opts = Clamp(p.descriptor, prompt, opts, p.logger)
	width, height := sizeDims(opts.Size)
	seed := deterministicSeed("ink", prompt, opts.Size, opts.Quality)
	p.logger.Debug().Str("size", string(opts.Size)).Msg("ink: rendered artifact")
	return &Artifact{
		Bytes:     renderSynthetic(width, height, seed, inkStreamPasses, inkStreamPasses),
		MediaType: "image/png",
	}, nil
}

// GenerateStream emits a coarse pass followed by the final render.
func (p *Ink) GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan Partial, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt, opts = Clamp(p.descriptor, prompt, opts, p.logger)
	width, height := sizeDims(opts.Size)
	seed := deterministicSeed("ink", prompt, opts.Size, opts.Quality)

	out := make(chan Partial)
	go func() {
		defer close(out)
		for pass := 1; pass <= inkStreamPasses; pass++ {
			partial := Partial{
				Bytes:     renderSynthetic(width, height, seed, pass, inkStreamPasses),
				MediaType: "image/png",
				Index:     pass - 1,
				Final:     pass == inkStreamPasses,
			}
			select {
			case out <- partial:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

var _ Generator = (*Ink)(nil)
