package report

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"octmeasure/pkg/oct"
)

// rampAnchors are the heat ramp control colours from low to high.
var rampAnchors = []color.RGBA{
	{R: 0x20, G: 0x00, B: 0x60, A: 0xff},
	{R: 0x20, G: 0x60, B: 0xc0, A: 0xff},
	{R: 0x20, G: 0xc0, B: 0x80, A: 0xff},
	{R: 0xe0, G: 0xc0, B: 0x20, A: 0xff},
	{R: 0xe0, G: 0x40, B: 0x20, A: 0xff},
}

// missingColor marks covered pixels without a value.
var missingColor = color.RGBA{R: 0x30, G: 0x30, B: 0x30, A: 0xff}

// RenderMap draws a measurement map as a heat image. Thickness maps
// are normalised to their 99.5th percentile so edge outliers do not
// flatten the ramp; ratio maps use the full unit range. Covered but
// missing pixels render dark grey, uncovered pixels stay black.
func RenderMap(m *oct.Map) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, m.W, m.H))

	clip := 1.0
	if m.Kind == oct.KindThickness {
		var vals []float64
		for i, in := range m.Inside {
			if in && !oct.IsMissing(m.Values[i]) {
				vals = append(vals, m.Values[i])
			}
		}
		if len(vals) > 0 {
			sort.Float64s(vals)
			clip = stat.Quantile(0.995, stat.Empirical, vals, nil)
		}
		if clip <= 0 {
			clip = 1
		}
	}

	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			i := m.Idx(x, y)
			if !m.Inside[i] {
				continue
			}
			v := m.Values[i]
			if oct.IsMissing(v) {
				img.SetRGBA(x, y, missingColor)
				continue
			}
			img.SetRGBA(x, y, rampColor(v/clip))
		}
	}
	return img
}

// rampColor interpolates the heat ramp at t, clamped to [0, 1].
func rampColor(t float64) color.RGBA {
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	scaled := t * float64(len(rampAnchors)-1)
	lo := int(scaled)
	if lo >= len(rampAnchors)-1 {
		return rampAnchors[len(rampAnchors)-1]
	}
	f := scaled - float64(lo)
	a, b := rampAnchors[lo], rampAnchors[lo+1]
	return color.RGBA{
		R: lerp(a.R, b.R, f),
		G: lerp(a.G, b.G, f),
		B: lerp(a.B, b.B, f),
		A: 0xff,
	}
}

func lerp(a, b uint8, f float64) uint8 {
	return uint8(float64(a) + f*(float64(b)-float64(a)))
}

// SaveImage writes an image by extension: .png lossless, anything
// else as JPEG.
func SaveImage(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer file.Close()

	if strings.EqualFold(filepath.Ext(path), ".png") {
		return png.Encode(file, img)
	}
	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}
