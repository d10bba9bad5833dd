// Package transform provides post-processing applied to fetched images.
//
// A Transformer's key participates in cache-key derivation so every
// transformed variant gets its own cache entry. Keys must therefore be
// stable across runs for the same transformer configuration.
package transform

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
)

// Transformer post-processes a fetched image before it is cached and
// delivered.
type Transformer interface {
	// TransformerKey returns a stable identity for cache-key derivation.
	// Two transformers producing identical output must share a key.
	TransformerKey() string

	// Transform returns the processed image. Implementations must not
	// mutate src and must return src unchanged (not nil) when they have
	// nothing to do.
	Transform(src image.Image) image.Image
}

// ============================================================================
// Grayscale
// ============================================================================

// Grayscale converts images to 8-bit grayscale.
type Grayscale struct{}

func (Grayscale) TransformerKey() string { return "grayscale" }

func (Grayscale) Transform(src image.Image) image.Image {
	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)
	return dst
}

// ============================================================================
// Resize
// ============================================================================

// Resize scales images to a fixed size using nearest-neighbor sampling.
// Width and Height must both be positive; a zero Resize is a no-op.
type Resize struct {
	Width  int
	Height int
}

func (r Resize) TransformerKey() string {
	return fmt.Sprintf("resize:%dx%d", r.Width, r.Height)
}

func (r Resize) Transform(src image.Image) image.Image {
	if r.Width <= 0 || r.Height <= 0 {
		return src
	}

	srcBounds := src.Bounds()
	srcW := srcBounds.Dx()
	srcH := srcBounds.Dy()
	if srcW == r.Width && srcH == r.Height {
		return src
	}
	if srcW == 0 || srcH == 0 {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		sy := srcBounds.Min.Y + y*srcH/r.Height
		for x := 0; x < r.Width; x++ {
			sx := srcBounds.Min.X + x*srcW/r.Width
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

// ============================================================================
// Tint
// ============================================================================

// Tint blends a solid color over the image at the given opacity (0..255).
type Tint struct {
	Color   color.RGBA
	Opacity uint8
}

func (t Tint) TransformerKey() string {
	return fmt.Sprintf("tint:%02x%02x%02x%02x/%d", t.Color.R, t.Color.G, t.Color.B, t.Color.A, t.Opacity)
}

func (t Tint) Transform(src image.Image) image.Image {
	if t.Opacity == 0 {
		return src
	}

	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	overlay := image.NewUniform(color.RGBA{t.Color.R, t.Color.G, t.Color.B, t.Opacity})
	draw.DrawMask(dst, bounds, overlay, image.Point{}, overlay, image.Point{}, draw.Over)
	return dst
}

// ============================================================================
// Pipeline
// ============================================================================

// Pipeline applies transformers in order. Its key is the ordered join of the
// child keys, so reordering produces a different cache identity.
type Pipeline []Transformer

func (p Pipeline) TransformerKey() string {
	keys := make([]string, 0, len(p))
	for _, t := range p {
		keys = append(keys, t.TransformerKey())
	}
	return strings.Join(keys, "+")
}

func (p Pipeline) Transform(src image.Image) image.Image {
	out := src
	for _, t := range p {
		out = t.Transform(out)
	}
	return out
}
