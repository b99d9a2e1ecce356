package provider

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

var testDescriptor = Descriptor{
	Name:               "test",
	SupportedSizes:     []Size{"512x512", "1024x1024"},
	SupportedQualities: []Quality{"draft", "standard"},
	DefaultSize:        "1024x1024",
	DefaultQuality:     "standard",
	MaxPromptLength:    20,
}

func TestClampFallsBackToDefaults(t *testing.T) {
	prompt, opts := Clamp(testDescriptor, "a forest", Options{Size: "9999x9999", Quality: "ultra"}, zerolog.Nop())
	if prompt != "a forest" {
		t.Fatalf("prompt changed: %q", prompt)
	}
	if opts.Size != "1024x1024" {
		t.Fatalf("size not clamped to default, got %q", opts.Size)
	}
	if opts.Quality != "standard" {
		t.Fatalf("quality not clamped to default, got %q", opts.Quality)
	}
}

func TestClampKeepsSupportedOptions(t *testing.T) {
	_, opts := Clamp(testDescriptor, "a forest", Options{Size: "512x512", Quality: "draft"}, zerolog.Nop())
	if opts.Size != "512x512" || opts.Quality != "draft" {
		t.Fatalf("supported options were altered: %+v", opts)
	}
}

func TestClampTruncatesPromptWithoutError(t *testing.T) {
	long := strings.Repeat("x", testDescriptor.MaxPromptLength+100)
	prompt, _ := Clamp(testDescriptor, long, Options{}, zerolog.Nop())
	if len(prompt) != testDescriptor.MaxPromptLength {
		t.Fatalf("prompt length %d, want %d", len(prompt), testDescriptor.MaxPromptLength)
	}
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(NewFlux(FluxOptions{}))
	r.Register(NewInk(nil))

	names := r.Names()
	if len(names) != 2 || names[0] != "flux" || names[1] != "ink" {
		t.Fatalf("unexpected order %v", names)
	}
	chain := r.Chain()
	if chain[0].Describe().Name != "flux" || chain[1].Describe().Name != "ink" {
		t.Fatal("chain order does not match registration order")
	}
	if _, ok := r.Get("flux"); !ok {
		t.Fatal("registered backend not found by name")
	}
	if _, ok := r.Get("nope"); ok {
		t.Fatal("unknown backend reported present")
	}
}

func TestFluxSyntheticDeterministic(t *testing.T) {
	f := NewFlux(FluxOptions{})
	a, err := f.Generate(context.Background(), "a harbor at dusk", Options{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := f.Generate(context.Background(), "a harbor at dusk", Options{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !bytes.Equal(a.Bytes, b.Bytes) {
		t.Fatal("same prompt produced different artifacts")
	}
	if a.MediaType != "image/png" {
		t.Fatalf("unexpected media type %q", a.MediaType)
	}
	c, err := f.Generate(context.Background(), "a different prompt", Options{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if bytes.Equal(a.Bytes, c.Bytes) {
		t.Fatal("different prompts produced identical artifacts")
	}
}

func TestFluxStreamEndsWithFinal(t *testing.T) {
	f := NewFlux(FluxOptions{})
	stream, err := f.GenerateStream(context.Background(), "a harbor at dusk", Options{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	var partials []Partial
	for p := range stream {
		partials = append(partials, p)
	}
	if len(partials) == 0 {
		t.Fatal("stream yielded nothing")
	}
	for i, p := range partials {
		if p.Index != i {
			t.Fatalf("partial %d carries index %d", i, p.Index)
		}
		if p.Final != (i == len(partials)-1) {
			t.Fatalf("final flag misplaced at index %d", i)
		}
	}
}

func TestInkStreamHonorsCancellation(t *testing.T) {
	ink := NewInk(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := ink.GenerateStream(ctx, "a harbor", Options{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	<-stream
	cancel()
	// Producer must terminate; the channel closes with or without further
	// items depending on timing.
	for range stream {
	}
}

func TestSizeDims(t *testing.T) {
	cases := []struct {
		size Size
		w, h int
	}{
		{"1024x1024", 1024, 1024},
		{"1920x1080", 1920, 1080},
		{" 512X512 ", 512, 512},
		{"garbage", 1024, 1024},
		{"", 1024, 1024},
	}
	for _, tc := range cases {
		w, h := sizeDims(tc.size)
		if w != tc.w || h != tc.h {
			t.Errorf("sizeDims(%q) = %dx%d, want %dx%d", tc.size, w, h, tc.w, tc.h)
		}
	}
}
