// Package oct defines the shared data model for OCT/SLO scan analysis:
// scan patterns, acquisition poses, physical scales, boundary curves,
// layer slabs, thickness profiles and en-face maps. All downstream
// packages operate on these types; none of them hold persistent state.
package oct

import (
	"image"
	"strings"
)

// ScanPattern identifies the acquisition geometry of a scan. It is a
// closed set: every dispatch over it is an exhaustive switch and an
// unlisted value must surface an unsupported-geometry error rather
// than fall through.
type ScanPattern int

const (
	// PatternUnknown is the zero value for an unrecognized pattern.
	PatternUnknown ScanPattern = iota

	// PatternHLine is a single horizontal line scan through the fovea.
	PatternHLine

	// PatternVLine is a single vertical line scan through the fovea.
	PatternVLine

	// PatternRadial is a set of line scans rotated about the fovea.
	PatternRadial

	// PatternMacularVolume is a stack of parallel B-scans covering the macula.
	PatternMacularVolume

	// PatternPosteriorPole is a stack of parallel B-scans covering the
	// posterior pole, typically paired with the square grid.
	PatternPosteriorPole

	// PatternPeripapillary is a circular scan centered on the optic disc.
	PatternPeripapillary
)

// String returns the display name of the scan pattern.
func (p ScanPattern) String() string {
	switch p {
	case PatternHLine:
		return "H-line"
	case PatternVLine:
		return "V-line"
	case PatternRadial:
		return "Radial"
	case PatternMacularVolume:
		return "Macular volume"
	case PatternPosteriorPole:
		return "Posterior pole"
	case PatternPeripapillary:
		return "Peripapillary"
	default:
		return "Unknown"
	}
}

// ParsePattern maps a pattern name to its ScanPattern. Matching is
// case-insensitive and tolerant of the spellings used by scan
// exporters ("ppole", "macular", "circle"). Unrecognized names map to
// PatternUnknown.
func ParsePattern(s string) ScanPattern {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "h-line", "hline", "h line":
		return PatternHLine
	case "v-line", "vline", "v line":
		return PatternVLine
	case "radial", "star":
		return PatternRadial
	case "macular volume", "macular", "volume":
		return PatternMacularVolume
	case "posterior pole", "ppole":
		return PatternPosteriorPole
	case "peripapillary", "circle", "circular", "onh":
		return PatternPeripapillary
	default:
		return PatternUnknown
	}
}

// Volumetric reports whether the pattern is a stack of parallel
// B-scans whose profiles combine into a dense en-face map.
func (p ScanPattern) Volumetric() bool {
	return p == PatternMacularVolume || p == PatternPosteriorPole
}

// Laterality identifies which eye was scanned.
type Laterality int

const (
	// LateralityUnknown is the zero value when the source carries no
	// laterality and inference was not possible.
	LateralityUnknown Laterality = iota

	// Right is the right eye (OD).
	Right

	// Left is the left eye (OS).
	Left
)

// String returns the clinical display name for the laterality.
func (l Laterality) String() string {
	switch l {
	case Right:
		return "Right"
	case Left:
		return "Left"
	default:
		return "Unknown"
	}
}

// ParseLaterality accepts the common spellings for eye laterality
// ("OD"/"OS", "R"/"L", "Right"/"Left"). Unrecognized values map to
// LateralityUnknown.
func ParseLaterality(s string) Laterality {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "od", "r", "right":
		return Right
	case "os", "l", "left":
		return Left
	default:
		return LateralityUnknown
	}
}

// Scale holds the physical pixel scale of a B-scan stack in mm/px.
type Scale struct {
	// X is the lateral scale along a B-scan in mm per pixel.
	X float64

	// Y is the axial scale (row direction within a B-scan) in mm per pixel.
	Y float64

	// Z is the spacing between consecutive B-scans in mm.
	Z float64
}

// Point is a 2-D coordinate. The space (millimeters on the en-face
// field or pixels on a canvas) is determined by the field that holds it.
type Point struct {
	X, Y float64
}

// Pose is the acquisition location of one B-scan on the en-face field,
// in millimeters. For circular acquisition Start lies on the scan
// circle and End is its center.
type Pose struct {
	Start    Point
	End      Point
	Circular bool
}

// BScan is one cross-sectional slice of a scan.
type BScan struct {
	// Index is the position of this B-scan in the acquisition sequence.
	Index int

	// Pose is the physical acquisition location on the en-face field.
	Pose Pose

	// Columns is the number of A-scans (columns) in the slice.
	Columns int

	// Image is the raw slice data. It may be nil; the measurement
	// engine operates on boundary curves only.
	Image *image.Gray
}

// SLO is the en-face localizer image a scan was acquired against.
type SLO struct {
	// Image is the grayscale en-face image.
	Image *image.Gray

	// ScaleMMPerPx is the field-of-view scale in mm per pixel.
	ScaleMMPerPx float64
}

// Volume is the decoder collaborator's product: one scan with its
// acquisition metadata and optional en-face localizer.
type Volume struct {
	// SourceFile is the path of the file the scan was decoded from.
	SourceFile string

	// Pattern is the acquisition geometry.
	Pattern ScanPattern

	// Laterality is the scanned eye, when the source records it.
	Laterality Laterality

	// Scale is the physical pixel scale of the B-scan stack.
	Scale Scale

	// BScans are the slices in acquisition order.
	BScans []BScan

	// SLO is the en-face localizer. Nil when the source carries none.
	SLO *SLO
}

// Disc is a detected optic-disc estimate on the en-face image.
type Disc struct {
	// Center is the disc center in en-face pixels.
	Center Point

	// RadiusPx is the disc radius in en-face pixels.
	RadiusPx float64
}

// VesselMaps are binary en-face vessel masks. Any of the fields may be
// nil when the corresponding mask was not produced.
type VesselMaps struct {
	All    *image.Gray
	Artery *image.Gray
	Vein   *image.Gray
}

// Segmentation is the segmentation collaborator's product for one scan.
type Segmentation struct {
	// Curves holds, per B-scan, the detected boundary curves keyed by
	// layer name. A layer absent from the map produced no reliable
	// curve for that slice.
	Curves []map[string]Curve

	// FoveaSLO is the detected fovea location in en-face pixels, nil
	// when detection failed.
	FoveaSLO *Point

	// FoveaColumn is the fovea column index on the central B-scan, -1
	// when unknown.
	FoveaColumn int

	// Disc is the detected optic disc, nil when not applicable.
	Disc *Disc

	// Vessels are optional binary en-face vessel masks.
	Vessels *VesselMaps
}
