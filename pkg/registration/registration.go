// Package registration places B-scan columns onto the en-face
// localiser image. Every supported acquisition pattern maps each
// column of each B-scan to a localiser pixel, producing the traces
// that grid aggregation samples from.
package registration

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"octmeasure/pkg/oct"
)

// ErrUnsupportedGeometry reports an acquisition pattern the registry
// has no placement rule for.
var ErrUnsupportedGeometry = errors.New("unsupported acquisition geometry")

// Trace is the localiser path of one B-scan, one point per column.
type Trace struct {
	// Scan is the B-scan index the trace belongs to.
	Scan int

	// Points holds the canvas coordinates of every column.
	Points []oct.Point

	// ExtentMM is the physical length of the scanned path: the
	// endpoint distance for a line, the circumference for a circle.
	ExtentMM float64
}

// Midpoint returns the central point of the trace.
func (t Trace) Midpoint() oct.Point {
	if len(t.Points) == 0 {
		return oct.Point{}
	}
	return t.Points[len(t.Points)/2]
}

// Padding records how far the canvas extends past the localiser image
// on each side. Traces can overhang the localiser when the scan area
// is wider than the captured en-face field.
type Padding struct {
	Left, Top, Right, Bottom int
}

// Result is a completed registration. All coordinates are in canvas
// pixels; subtract the padding to recover localiser coordinates.
type Result struct {
	// Traces holds one trace per B-scan, in acquisition order.
	Traces []Trace

	// Pad is the canvas expansion beyond the localiser bounds.
	Pad Padding

	// W and H are the canvas dimensions.
	W, H int

	// ScaleMMPerPx is the lateral scale of the canvas.
	ScaleMMPerPx float64

	// Fovea is the foveal landmark on the canvas.
	Fovea oct.Point

	// Center is the scan centre: the circle centre for peripapillary
	// acquisitions, the trace centroid otherwise.
	Center oct.Point

	// Radius is the scan circle radius in pixels. Zero for
	// non-circular patterns.
	Radius float64

	// Angles holds the per-column scan angle in radians for circular
	// patterns, measured from the circle centre. Nil otherwise.
	Angles []float64

	// Laterality is the eye the scan was acquired from, inferred from
	// the landmark layout when the source did not state it.
	Laterality oct.Laterality
}

// Register places every B-scan of the volume onto the localiser. The
// supported patterns are enumerated explicitly; anything else fails
// with ErrUnsupportedGeometry rather than guessing a placement.
func Register(vol *oct.Volume, seg *oct.Segmentation) (*Result, error) {
	if len(vol.BScans) == 0 {
		return nil, fmt.Errorf("volume %s has no B-scans to register", vol.SourceFile)
	}
	scale := enFaceScale(vol)
	if scale <= 0 {
		return nil, fmt.Errorf("volume %s has no usable en-face pixel scale", vol.SourceFile)
	}

	var (
		res *Result
		err error
	)
	switch vol.Pattern {
	case oct.PatternHLine, oct.PatternVLine, oct.PatternRadial, oct.PatternMacularVolume, oct.PatternPosteriorPole:
		res, err = registerLinear(vol, scale)
	case oct.PatternPeripapillary:
		res, err = registerCircle(vol, scale)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, vol.Pattern)
	}
	if err != nil {
		return nil, err
	}

	res.ScaleMMPerPx = scale
	res.Laterality = vol.Laterality
	res.finish(vol, seg)
	return res, nil
}

// enFaceScale resolves the mm-per-pixel scale of the en-face field,
// preferring the localiser's own calibration.
func enFaceScale(vol *oct.Volume) float64 {
	if vol.SLO != nil && vol.SLO.ScaleMMPerPx > 0 {
		return vol.SLO.ScaleMMPerPx
	}
	return vol.Scale.X
}

// registerLinear interpolates each B-scan's columns evenly between its
// line endpoints, converted from millimeters to localiser pixels.
func registerLinear(vol *oct.Volume, scale float64) (*Result, error) {
	res := &Result{Traces: make([]Trace, len(vol.BScans))}
	for i, b := range vol.BScans {
		if b.Pose.Circular {
			return nil, fmt.Errorf("b-scan %d: circular pose in a %s acquisition", i, vol.Pattern)
		}
		start, end := b.Pose.Start, b.Pose.End
		if start == end {
			return nil, fmt.Errorf("b-scan %d: degenerate line geometry, start equals end", i)
		}
		pxStart := oct.Point{X: start.X / scale, Y: start.Y / scale}
		pxEnd := oct.Point{X: end.X / scale, Y: end.Y / scale}
		res.Traces[i] = Trace{
			Scan:     i,
			Points:   linePoints(pxStart, pxEnd, b.Columns),
			ExtentMM: math.Hypot(end.X-start.X, end.Y-start.Y),
		}
	}
	return res, nil
}

// registerCircle places the single circular B-scan of a peripapillary
// acquisition. The pose start lies on the circle and the pose end is
// its centre; columns advance clockwise in image coordinates from the
// start point.
func registerCircle(vol *oct.Volume, scale float64) (*Result, error) {
	if len(vol.BScans) != 1 {
		return nil, fmt.Errorf("peripapillary acquisition has %d B-scans, want 1", len(vol.BScans))
	}
	b := vol.BScans[0]
	if !b.Pose.Circular {
		return nil, fmt.Errorf("b-scan 0: linear pose in a peripapillary acquisition")
	}
	center, start := b.Pose.End, b.Pose.Start
	radiusMM := math.Hypot(start.X-center.X, start.Y-center.Y)
	if radiusMM <= 0 {
		return nil, fmt.Errorf("b-scan 0: scan circle has zero radius")
	}
	radius := radiusMM / scale
	centerPx := oct.Point{X: center.X / scale, Y: center.Y / scale}

	startAngle := math.Atan2(start.Y-center.Y, start.X-center.X)
	points := make([]oct.Point, b.Columns)
	angles := make([]float64, b.Columns)
	for c := 0; c < b.Columns; c++ {
		a := startAngle + 2*math.Pi*float64(c)/float64(b.Columns)
		points[c] = oct.Point{
			X: centerPx.X + radius*math.Cos(a),
			Y: centerPx.Y + radius*math.Sin(a),
		}
		angles[c] = a
	}
	return &Result{
		Traces: []Trace{{Scan: 0, Points: points, ExtentMM: 2 * math.Pi * radiusMM}},
		Center: centerPx,
		Radius: radius,
		Angles: angles,
	}, nil
}

// linePoints spreads count points evenly from start to end, both
// inclusive.
func linePoints(start, end oct.Point, count int) []oct.Point {
	points := make([]oct.Point, count)
	if count == 1 {
		points[0] = start
		return points
	}
	for c := 0; c < count; c++ {
		f := float64(c) / float64(count-1)
		points[c] = oct.Point{
			X: start.X + f*(end.X-start.X),
			Y: start.Y + f*(end.Y-start.Y),
		}
	}
	return points
}

// finish pads the canvas around the localiser, shifts everything into
// canvas coordinates and resolves the foveal landmark and laterality.
func (res *Result) finish(vol *oct.Volume, seg *oct.Segmentation) {
	sloW, sloH := 0, 0
	if vol.SLO != nil && vol.SLO.Image != nil {
		bounds := vol.SLO.Image.Bounds()
		sloW, sloH = bounds.Dx(), bounds.Dy()
	}

	minX, minY := 0.0, 0.0
	maxX, maxY := float64(sloW-1), float64(sloH-1)
	for _, t := range res.Traces {
		for _, p := range t.Points {
			minX = math.Min(minX, p.X)
			minY = math.Min(minY, p.Y)
			maxX = math.Max(maxX, p.X)
			maxY = math.Max(maxY, p.Y)
		}
	}
	res.Pad = Padding{
		Left:   int(math.Ceil(-minX)),
		Top:    int(math.Ceil(-minY)),
		Right:  int(math.Ceil(maxX)) - (sloW - 1),
		Bottom: int(math.Ceil(maxY)) - (sloH - 1),
	}
	if res.Pad.Left < 0 {
		res.Pad.Left = 0
	}
	if res.Pad.Top < 0 {
		res.Pad.Top = 0
	}
	if res.Pad.Right < 0 {
		res.Pad.Right = 0
	}
	if res.Pad.Bottom < 0 {
		res.Pad.Bottom = 0
	}
	res.W = sloW + res.Pad.Left + res.Pad.Right
	res.H = sloH + res.Pad.Top + res.Pad.Bottom

	shift := oct.Point{X: float64(res.Pad.Left), Y: float64(res.Pad.Top)}
	for i := range res.Traces {
		for j := range res.Traces[i].Points {
			res.Traces[i].Points[j].X += shift.X
			res.Traces[i].Points[j].Y += shift.Y
		}
	}

	if res.Radius > 0 {
		res.Center.X += shift.X
		res.Center.Y += shift.Y
	} else {
		res.Center = res.centroid()
	}

	var disc *oct.Point
	if seg != nil && seg.Disc != nil {
		disc = &oct.Point{X: seg.Disc.Center.X + shift.X, Y: seg.Disc.Center.Y + shift.Y}
	}

	switch {
	case seg != nil && seg.FoveaSLO != nil:
		res.Fovea = oct.Point{X: seg.FoveaSLO.X + shift.X, Y: seg.FoveaSLO.Y + shift.Y}
	case seg != nil && seg.FoveaColumn >= 0:
		t := res.Traces[len(res.Traces)/2]
		col := seg.FoveaColumn
		if col >= len(t.Points) {
			col = len(t.Points) - 1
		}
		res.Fovea = t.Points[col]
	default:
		res.Fovea = res.Center
	}

	if res.Laterality == oct.LateralityUnknown && disc != nil && seg != nil && (seg.FoveaSLO != nil || seg.FoveaColumn >= 0) {
		res.Laterality = inferLaterality(res.Fovea, *disc)
	}
}

func (res *Result) centroid() oct.Point {
	var sum oct.Point
	n := 0
	for _, t := range res.Traces {
		for _, p := range t.Points {
			sum.X += p.X
			sum.Y += p.Y
			n++
		}
	}
	if n == 0 {
		return oct.Point{}
	}
	return oct.Point{X: sum.X / float64(n), Y: sum.Y / float64(n)}
}

// inferLaterality reads the eye from the landmark layout: the fovea
// sits temporal to the disc, and temporal is the left of the image for
// a right eye.
func inferLaterality(fovea, disc oct.Point) oct.Laterality {
	if fovea.X < disc.X {
		return oct.Right
	}
	return oct.Left
}

// Location names the anatomical region the pattern images, for
// reporting.
func Location(pattern oct.ScanPattern) string {
	switch pattern {
	case oct.PatternPeripapillary, oct.PatternPosteriorPole:
		return "optic disc"
	default:
		return "macula"
	}
}

// palette holds the trace overlay colours, cycled per B-scan.
var palette = []color.RGBA{
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
	{R: 0x8c, G: 0x56, B: 0x4b, A: 0xff},
	{R: 0xe3, G: 0x77, B: 0xc2, A: 0xff},
	{R: 0x17, G: 0xbe, B: 0xcf, A: 0xff},
}

// PaletteColor returns the overlay colour for B-scan i out of n. A
// single-scan acquisition is always drawn green.
func PaletteColor(i, n int) color.RGBA {
	if n == 1 {
		return color.RGBA{G: 0xff, A: 0xff}
	}
	return palette[i%len(palette)]
}

// Overlay renders the registered traces and landmarks on top of the
// localiser image. The localiser may be nil, in which case the traces
// are drawn on a black canvas.
func Overlay(slo *oct.SLO, res *Result) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, res.W, res.H))
	if slo != nil && slo.Image != nil {
		target := image.Rect(res.Pad.Left, res.Pad.Top,
			res.Pad.Left+slo.Image.Bounds().Dx(), res.Pad.Top+slo.Image.Bounds().Dy())
		draw.Draw(img, target, slo.Image, slo.Image.Bounds().Min, draw.Src)
	}

	for i, t := range res.Traces {
		c := PaletteColor(i, len(res.Traces))
		for _, p := range t.Points {
			setPx(img, p, c)
		}
	}

	cross := color.RGBA{R: 0xff, G: 0xff, B: 0x00, A: 0xff}
	for d := -3; d <= 3; d++ {
		setPx(img, oct.Point{X: res.Fovea.X + float64(d), Y: res.Fovea.Y}, cross)
		setPx(img, oct.Point{X: res.Fovea.X, Y: res.Fovea.Y + float64(d)}, cross)
	}
	return img
}

func setPx(img *image.RGBA, p oct.Point, c color.RGBA) {
	x, y := int(math.Round(p.X)), int(math.Round(p.Y))
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}
