package provider

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
)

// Synthetic rendering keeps the whole pipeline exercisable without remote
// credentials: every backend falls back to a deterministic placeholder image
// derived from the prompt, so local and CI runs behave identically.

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

// sizeDims parses a "WxH" size into pixel dimensions.
func sizeDims(size Size) (int, int) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(string(size))), "x", 2)
	if len(parts) == 2 {
		w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
		h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errW == nil && errH == nil && w > 0 && h > 0 {
			return w, h
		}
	}
	return 1024, 1024
}

// renderSynthetic produces a deterministic PNG for the seed. The detail
// parameter ranges over [1, passes]; lower detail yields a coarser rendering,
// which streaming backends use for progressive partials.
func renderSynthetic(width, height int, seed string, detail, passes int) []byte {
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	if passes <= 0 {
		passes = 1
	}
	if detail <= 0 {
		detail = 1
	}
	if detail > passes {
		detail = passes
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	// Coarse passes render fewer, wider stripes; the final pass adds the
	// diagonal hatching.
	stripeHeight := maxInt(32, height/(4*detail))
	for y := 0; y < height; y += stripeHeight * 2 {
		stripe := image.Rect(0, y, width, minInt(height, y+stripeHeight))
		draw.Draw(img, stripe, &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	if detail == passes {
		diagonal := colorFromSeed(seed, 2)
		for i := 0; i < maxInt(width, height); i += maxInt(16, width/32) {
			for y := 0; y < height; y++ {
				xx := i + y
				if xx >= width {
					break
				}
				img.Set(xx, y, diagonal)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if len(seed) < 6 {
		seed = "1f2e3d4c5b6a"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{
		R: mustParseHexByte(segment[0:2]),
		G: mustParseHexByte(segment[2:4]),
		B: mustParseHexByte(segment[4:6]),
		A: 255,
	}
}

func mustParseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
