package batch

import (
	"fmt"
	"image"
	"math"
	"path/filepath"
	"time"

	"octmeasure/internal/report"
	"octmeasure/pkg/boundary"
	"octmeasure/pkg/grid"
	"octmeasure/pkg/oct"
	"octmeasure/pkg/registration"
	"octmeasure/pkg/runlog"
	"octmeasure/pkg/thickness"
)

// analysisOutput gathers everything one scan analysis produces.
type analysisOutput struct {
	metadata     report.FileMetadata
	measurements []grid.Measurement
	images       map[string]image.Image
}

// analyzeScan runs the measurement pipeline for one decoded scan.
func (o *Orchestrator) analyzeScan(vol *oct.Volume, seg *oct.Segmentation, log *runlog.Collector) (*analysisOutput, *AnalysisError) {
	cfg := o.params.Config
	name := filepath.Base(vol.SourceFile)

	// Step 1: Register the acquisition geometry onto the localiser.
	res, err := registration.Register(vol, seg)
	if err != nil {
		return nil, newRegistrationError(name, err)
	}
	log.SetScan(vol.Pattern.String())
	lat := res.Laterality
	if lat == oct.LateralityUnknown {
		log.Warnf("laterality unknown, reporting as a right eye")
		lat = oct.Right
	}
	log.Infof("registered %s %s acquisition with %d B-scans of %d columns",
		lat, vol.Pattern, len(vol.BScans), vol.BScans[0].Columns)
	if seg.FoveaSLO == nil && seg.FoveaColumn < 0 {
		log.Warnf("fovea landmark missing, centring grids on the scan centre")
	}

	// Step 2: Pair boundary curves into slabs under the degradation
	// policy.
	slabs := boundary.BuildVolume(seg.Curves, o.requests, cfg.Analysis.DegradationThreshold, log)
	if len(slabs.Names) == 0 {
		return nil, newSegmentationError(name, "no usable layer slabs in segmentation", nil)
	}

	// Step 3: Compute thickness profiles per slab and B-scan.
	profiles := make(map[string][]oct.Profile, len(slabs.Names))
	for _, slabName := range slabs.Names {
		conv := oct.AxisAligned
		if containsString(cfg.Analysis.NormalSlabs, slabName) {
			conv = oct.LocallyNormal
		}
		profs := make([]oct.Profile, len(slabs.PerScan))
		for i := range slabs.PerScan {
			profs[i] = thickness.Compute(slabs.PerScan[i][slabName], vol.Scale, conv)
		}
		profiles[slabName] = profs
	}

	out := &analysisOutput{images: make(map[string]image.Image)}
	interp := cfg.Analysis.InterpolateMissing
	decentrationPct := math.NaN()
	shiftDeg := 0.0

	// Step 4: Lay the pattern's grid and aggregate every slab.
	variant := grid.ForPattern(vol.Pattern)
	var def grid.Definition
	switch variant {
	case grid.VariantETDRS, grid.VariantSquare:
		if variant == grid.VariantETDRS {
			def = grid.ETDRS(res.W, res.H, res.Fovea, res.ScaleMMPerPx,
				cfg.Grid.EtdrsDiametersMicrons, lat)
		} else {
			var ok bool
			def, ok = grid.Square(res.W, res.H, res.Center, res.ScaleMMPerPx,
				cfg.Grid.SquareDivisions, cfg.Grid.SquareSizeMicrons, lat)
			if !ok {
				n := cfg.Grid.SquareDivisions
				log.Warnf("%dx%d %.3fmm grid unavailable given field of view.",
					n, n, cfg.Grid.SquareSizeMicrons/1000/float64(n))
				log.Warnf("Failed to measure square grid with a width of %.1fmm.",
					cfg.Grid.SquareSizeMicrons/1000)
				log.Warnf("Measuring the entire map, centred on the scan, not the fovea/optic disc.")
			}
		}
		for _, slabName := range slabs.Names {
			m := grid.BuildMap(profiles[slabName], res, vol.Pattern, oct.KindThickness)
			appendMeasurements(&out.measurements, grid.MeasureMap(m, def, interp, log), slabName)
			if cfg.Output.SaveImages {
				out.images["map_"+slabName+".jpg"] = report.RenderMap(m)
			}
		}

	case grid.VariantPeripapillary:
		anglesDeg := make([]float64, len(res.Angles))
		for i, a := range res.Angles {
			anglesDeg[i] = grid.TemporalAngle(a, lat)
		}
		if seg.Disc != nil && seg.Disc.RadiusPx > 0 && res.Radius > 0 {
			discX := seg.Disc.Center.X + float64(res.Pad.Left)
			discY := seg.Disc.Center.Y + float64(res.Pad.Top)
			offX := res.Center.X - discX
			offY := res.Center.Y - discY
			offset := math.Hypot(offX, offY)
			decentrationPct = 100 * offset / (2 * seg.Disc.RadiusPx)
			shiftDeg = (decentrationPct / 100) * (2 * seg.Disc.RadiusPx / res.Radius) * 180 / math.Pi
			if ux, uy := res.Fovea.X-discX, res.Fovea.Y-discY; ux*offY-uy*offX < 0 {
				shiftDeg = -shiftDeg
			}
			if decentrationPct > 0 {
				log.Infof("optic disc decentration %.2f%% of disc diameter, shifting sector boundaries by %.2f degrees",
					decentrationPct, shiftDeg)
			}
		}
		for _, slabName := range slabs.Names {
			values := profiles[slabName][0].Values
			if cfg.Analysis.SmoothingWindow > 1 {
				values = thickness.MovingAverage(values, cfg.Analysis.SmoothingWindow)
			}
			appendMeasurements(&out.measurements,
				grid.Sectors(values, anglesDeg, shiftDeg, cfg.Grid.PMBHalfWidthDegrees, interp, log),
				slabName)
		}

	case grid.VariantLinear:
		for _, slabName := range slabs.Names {
			profs := profiles[slabName]
			for si, prof := range profs {
				ms := grid.Linear(prof.Values, seg.FoveaColumn,
					cfg.Grid.LinearDistancesMicrons, vol.Scale, interp, log)
				if len(profs) > 1 {
					for i := range ms {
						ms[i].Region = fmt.Sprintf("scan%d_%s", si, ms[i].Region)
					}
				}
				appendMeasurements(&out.measurements, ms, slabName)
			}
		}

	default:
		return nil, newMeasurementError(name, fmt.Sprintf("no measurement grid for pattern %s", vol.Pattern))
	}

	// Step 5: Measure vessel maps as ratio maps with the location's
	// grid.
	if seg.Vessels != nil && vol.SLO != nil {
		vdef := def
		switch variant {
		case grid.VariantPeripapillary:
			center := res.Center
			if seg.Disc != nil {
				center = oct.Point{
					X: seg.Disc.Center.X + float64(res.Pad.Left),
					Y: seg.Disc.Center.Y + float64(res.Pad.Top),
				}
			}
			vdef = grid.Peripapillary2D(res.W, res.H, center, res.Radius,
				res.ScaleMMPerPx, shiftDeg, lat)
		case grid.VariantLinear:
			vdef = grid.ETDRS(res.W, res.H, res.Fovea, res.ScaleMMPerPx,
				cfg.Grid.EtdrsDiametersMicrons, lat)
		}
		vessels := []struct {
			name string
			img  *image.Gray
		}{
			{"vessel_density", seg.Vessels.All},
			{"artery_density", seg.Vessels.Artery},
			{"vein_density", seg.Vessels.Vein},
		}
		for _, v := range vessels {
			if v.img == nil {
				continue
			}
			vm := grid.MaskMap(v.img, res)
			appendMeasurements(&out.measurements, grid.MeasureMap(vm, vdef, interp, log), v.name)
			if cfg.Output.SaveImages {
				out.images["map_"+v.name+".jpg"] = report.RenderMap(vm)
			}
		}
	}

	// Step 6: Assemble the metadata record and the overlay image.
	md := report.FileMetadata{
		Filename:          name,
		AnalysedAt:        time.Now().UTC(),
		Pattern:           vol.Pattern.String(),
		Location:          registration.Location(vol.Pattern),
		Eye:               lat.String(),
		BScans:            len(vol.BScans),
		Columns:           vol.BScans[0].Columns,
		ScaleXMicrons:     vol.Scale.X * 1000,
		ScaleYMicrons:     vol.Scale.Y * 1000,
		ScaleZMicrons:     vol.Scale.Z * 1000,
		SLOScaleMicrons:   res.ScaleMMPerPx * 1000,
		ROIExtentMM:       res.Traces[len(res.Traces)/2].ExtentMM,
		SLOFoveaX:         res.Fovea.X - float64(res.Pad.Left),
		SLOFoveaY:         res.Fovea.Y - float64(res.Pad.Top),
		MissingFovea:      seg.FoveaSLO == nil && seg.FoveaColumn < 0,
		OpticDiscX:        math.NaN(),
		OpticDiscY:        math.NaN(),
		OpticDiscRadiusPx: math.NaN(),
		DecentrationPct:   decentrationPct,
		Slabs:             slabs.Names,
		Convention:        conventionLabel(cfg.Analysis.NormalSlabs, slabs.Names),
	}
	if seg.Disc != nil {
		md.OpticDiscX = seg.Disc.Center.X
		md.OpticDiscY = seg.Disc.Center.Y
		md.OpticDiscRadiusPx = seg.Disc.RadiusPx
	}
	out.metadata = md

	if cfg.Output.SaveImages && vol.SLO != nil {
		out.images["slo_traces.jpg"] = registration.Overlay(vol.SLO, res)
	}
	return out, nil
}

// appendMeasurements tags a measurement batch with its slab name and
// appends it.
func appendMeasurements(dst *[]grid.Measurement, src []grid.Measurement, slab string) {
	for _, m := range src {
		m.Slab = slab
		*dst = append(*dst, m)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// conventionLabel names the thickness convention(s) used for the
// measured slabs.
func conventionLabel(normalSlabs, measured []string) string {
	normal := false
	axial := false
	for _, s := range measured {
		if containsString(normalSlabs, s) {
			normal = true
		} else {
			axial = true
		}
	}
	switch {
	case normal && axial:
		return oct.AxisAligned.String() + "+" + oct.LocallyNormal.String()
	case normal:
		return oct.LocallyNormal.String()
	default:
		return oct.AxisAligned.String()
	}
}
