package grid

import (
	"fmt"
	"math"

	"octmeasure/pkg/oct"
)

// Square lays the posterior pole chessboard grid on a canvas:
// divisions x divisions square cells covering sizeUm micrometres,
// centred on the scan centre. Cells are labeled "row.column" with
// rows numbered from the bottom and columns mirrored for a left eye
// so that a label always names the same anatomical cell. The second
// return value is false when the grid does not fit inside the canvas;
// callers then measure the whole image instead.
func Square(w, h int, center oct.Point, scaleMMPerPx float64, divisions int, sizeUm float64, lat oct.Laterality) (Definition, bool) {
	def := Definition{Variant: VariantSquare, W: w, H: h, ScaleMMPerPx: scaleMMPerPx}

	widthPx := sizeUm / 1000 / scaleMMPerPx
	xs := gridLines(center.X, widthPx, divisions)
	ys := gridLines(center.Y, widthPx, divisions)
	for _, x := range xs {
		if x <= 0 || x >= w {
			return def, false
		}
	}
	for _, y := range ys {
		if y <= 0 || y >= h {
			return def, false
		}
	}

	for i := 0; i < divisions; i++ {
		for j := 0; j < divisions; j++ {
			mask := make([]bool, w*h)
			for y := ys[i]; y < ys[i+1]; y++ {
				for x := xs[j]; x < xs[j+1]; x++ {
					mask[y*w+x] = true
				}
			}
			col := j + 1
			if lat == oct.Left {
				col = divisions - j
			}
			def.Regions = append(def.Regions, Region{
				Name: fmt.Sprintf("%d.%d", divisions-i, col),
				Mask: mask,
			})
		}
	}
	return def, true
}

// gridLines returns divisions+1 evenly spaced pixel indices covering
// widthPx around the centre coordinate.
func gridLines(center, widthPx float64, divisions int) []int {
	lines := make([]int, divisions+1)
	for i := range lines {
		f := float64(i) / float64(divisions)
		lines[i] = int(math.Round(center - widthPx/2 + f*widthPx))
	}
	return lines
}
