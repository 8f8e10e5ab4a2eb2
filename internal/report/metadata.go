// Package report writes the per-file result bundle: metadata and
// measurement tables, rendered images, the run log and the completion
// record that later runs use to decide whether a file needs
// reanalysing.
package report

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// FileMetadata describes one analysed file. Fields are assembled by
// construction during the pipeline; absent optional landmarks stay
// NaN and are written as empty cells.
type FileMetadata struct {
	// Filename is the source file name without directory.
	Filename string

	// AnalysisID identifies the run that produced the bundle.
	AnalysisID string

	// AnalysedAt is when the analysis completed.
	AnalysedAt time.Time

	// Pattern is the acquisition pattern name.
	Pattern string

	// Location is the imaged anatomical region.
	Location string

	// Eye is the laterality name.
	Eye string

	// BScans and Columns give the scan dimensions.
	BScans  int
	Columns int

	// ScaleXMicrons, ScaleYMicrons and ScaleZMicrons are the B-scan
	// pixel scales in microns per pixel.
	ScaleXMicrons float64
	ScaleYMicrons float64
	ScaleZMicrons float64

	// SLOScaleMicrons is the localiser pixel scale in microns per
	// pixel.
	SLOScaleMicrons float64

	// ROIExtentMM is the physical length of one B-scan's acquisition
	// path: the endpoint distance for a line scan, the circle
	// circumference for a peripapillary scan.
	ROIExtentMM float64

	// SLOFoveaX and SLOFoveaY locate the fovea on the localiser.
	SLOFoveaX float64
	SLOFoveaY float64

	// MissingFovea reports that no foveal landmark was available and
	// fovea-anchored grids were centred on the scan instead.
	MissingFovea bool

	// OpticDiscX, OpticDiscY and OpticDiscRadiusPx describe the
	// detected disc for peripapillary acquisitions.
	OpticDiscX        float64
	OpticDiscY        float64
	OpticDiscRadiusPx float64

	// DecentrationPct is the acquisition centre's offset from the
	// detected disc centre as a percentage of disc diameter.
	DecentrationPct float64

	// Slabs lists the layer slabs that were measured.
	Slabs []string

	// Convention names the thickness measurement convention.
	Convention string

	// Warnings counts the warning entries in the run log.
	Warnings int
}

// metadataHeader is the column order of metadata.csv.
var metadataHeader = []string{
	"filename",
	"analysis_id",
	"analysed_at",
	"acquisition_pattern",
	"location",
	"eye",
	"num_bscans",
	"num_columns",
	"scale_x_microns_per_px",
	"scale_y_microns_per_px",
	"scale_z_microns_per_px",
	"slo_scale_microns_per_px",
	"roi_extent_mm",
	"slo_fovea_x",
	"slo_fovea_y",
	"slo_missing_fovea",
	"optic_disc_x",
	"optic_disc_y",
	"optic_disc_radius_px",
	"decentration_pct",
	"slabs",
	"thickness_convention",
	"measurement_units",
	"warnings",
}

// Header returns the metadata.csv column names.
func (md FileMetadata) Header() []string {
	return append([]string(nil), metadataHeader...)
}

// Row returns the metadata.csv values in header order.
func (md FileMetadata) Row() []string {
	return []string{
		md.Filename,
		md.AnalysisID,
		md.AnalysedAt.UTC().Format(time.RFC3339),
		md.Pattern,
		md.Location,
		md.Eye,
		strconv.Itoa(md.BScans),
		strconv.Itoa(md.Columns),
		formatFloat(md.ScaleXMicrons, 4),
		formatFloat(md.ScaleYMicrons, 4),
		formatFloat(md.ScaleZMicrons, 4),
		formatFloat(md.SLOScaleMicrons, 4),
		formatFloat(md.ROIExtentMM, 2),
		formatFloat(md.SLOFoveaX, 1),
		formatFloat(md.SLOFoveaY, 1),
		strconv.FormatBool(md.MissingFovea),
		formatFloat(md.OpticDiscX, 1),
		formatFloat(md.OpticDiscY, 1),
		formatFloat(md.OpticDiscRadiusPx, 1),
		formatFloat(md.DecentrationPct, 2),
		joinSlabs(md.Slabs),
		md.Convention,
		"microns",
		strconv.Itoa(md.Warnings),
	}
}

// formatFloat renders a value with fixed precision, or an empty cell
// for an absent value. Absent values are never written as zero.
func formatFloat(v float64, prec int) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

func joinSlabs(slabs []string) string {
	out := ""
	for i, s := range slabs {
		if i > 0 {
			out += ";"
		}
		out += s
	}
	return out
}

// Describe returns a one-line human readable summary for logging.
func (md FileMetadata) Describe() string {
	return fmt.Sprintf("%s: %s %s scan, %d B-scans x %d columns",
		md.Filename, md.Eye, md.Pattern, md.BScans, md.Columns)
}
