// Package exchange loads scan envelopes: a JSON description of one
// acquisition (pattern, geometry, scales, boundary curves, landmarks)
// with PNG sidecar images next to it. The envelope carries everything
// the pipeline needs, so exported scans analyse identically across
// machines.
package exchange

import (
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"octmeasure/pkg/oct"
)

// envelopeSchemaVersion is the newest envelope layout this loader
// understands.
const envelopeSchemaVersion = 1

type envelopePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type envelopeBScan struct {
	Image    string                `json:"image,omitempty"`
	Columns  int                   `json:"columns"`
	Start    envelopePoint         `json:"start"`
	End      envelopePoint         `json:"end"`
	Circular bool                  `json:"circular,omitempty"`
	Curves   map[string][]*float64 `json:"curves"`
}

type envelopeSLO struct {
	Image        string  `json:"image"`
	ScaleMMPerPx float64 `json:"scaleMmPerPx"`
}

type envelopeFovea struct {
	SLO    *envelopePoint `json:"slo,omitempty"`
	Column *int           `json:"column,omitempty"`
}

type envelopeDisc struct {
	Center   envelopePoint `json:"center"`
	RadiusPx float64       `json:"radiusPx"`
}

type envelopeVessels struct {
	All    string `json:"all,omitempty"`
	Artery string `json:"artery,omitempty"`
	Vein   string `json:"vein,omitempty"`
}

type envelope struct {
	SchemaVersion int    `json:"schemaVersion"`
	Pattern       string `json:"pattern"`
	Eye           string `json:"eye,omitempty"`
	Scale         struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z,omitempty"`
	} `json:"scale"`
	SLO     *envelopeSLO     `json:"slo,omitempty"`
	BScans  []envelopeBScan  `json:"bscans"`
	Fovea   *envelopeFovea   `json:"fovea,omitempty"`
	Disc    *envelopeDisc    `json:"opticDisc,omitempty"`
	Vessels *envelopeVessels `json:"vessels,omitempty"`

	dir string
}

// Loader decodes scan envelopes. Parsed envelopes are cached between
// the volume and segmentation loads of the same file, then dropped.
type Loader struct {
	mu    sync.Mutex
	cache map[string]*envelope
}

// NewLoader returns a ready Loader.
func NewLoader() *Loader {
	return &Loader{cache: make(map[string]*envelope)}
}

func (l *Loader) load(path string) (*envelope, error) {
	l.mu.Lock()
	if env, ok := l.cache[path]; ok {
		l.mu.Unlock()
		return env, nil
	}
	l.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read envelope: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}
	if env.SchemaVersion > envelopeSchemaVersion {
		return nil, fmt.Errorf("envelope schema version %d is newer than supported version %d",
			env.SchemaVersion, envelopeSchemaVersion)
	}
	if len(env.BScans) == 0 {
		return nil, fmt.Errorf("envelope contains no B-scans")
	}
	if env.Scale.X <= 0 || env.Scale.Y <= 0 {
		return nil, fmt.Errorf("envelope scale must be positive, got x=%g y=%g", env.Scale.X, env.Scale.Y)
	}
	env.dir = filepath.Dir(path)

	l.mu.Lock()
	l.cache[path] = &env
	l.mu.Unlock()
	return &env, nil
}

// Decode loads the acquisition (images, geometry, scales) from an
// envelope.
func (l *Loader) Decode(path string) (*oct.Volume, error) {
	env, err := l.load(path)
	if err != nil {
		return nil, err
	}

	vol := &oct.Volume{
		SourceFile: filepath.Base(path),
		Pattern:    oct.ParsePattern(env.Pattern),
		Laterality: oct.ParseLaterality(env.Eye),
		Scale:      oct.Scale{X: env.Scale.X, Y: env.Scale.Y, Z: env.Scale.Z},
	}
	if vol.Pattern == oct.PatternUnknown {
		return nil, fmt.Errorf("unknown acquisition pattern %q", env.Pattern)
	}

	if env.SLO != nil {
		img, err := l.loadGray(env, env.SLO.Image)
		if err != nil {
			return nil, fmt.Errorf("failed to load localiser image: %w", err)
		}
		vol.SLO = &oct.SLO{Image: img, ScaleMMPerPx: env.SLO.ScaleMMPerPx}
	}

	for i, b := range env.BScans {
		if b.Columns <= 0 {
			return nil, fmt.Errorf("b-scan %d has no columns", i)
		}
		scan := oct.BScan{
			Index:   i,
			Columns: b.Columns,
			Pose: oct.Pose{
				Start:    oct.Point{X: b.Start.X, Y: b.Start.Y},
				End:      oct.Point{X: b.End.X, Y: b.End.Y},
				Circular: b.Circular,
			},
		}
		if b.Image != "" {
			img, err := l.loadGray(env, b.Image)
			if err != nil {
				return nil, fmt.Errorf("failed to load b-scan %d image: %w", i, err)
			}
			scan.Image = img
		}
		vol.BScans = append(vol.BScans, scan)
	}
	return vol, nil
}

// Segment loads the boundary curves and landmarks from the same
// envelope. The envelope is released from the cache afterwards.
func (l *Loader) Segment(path string, vol *oct.Volume) (*oct.Segmentation, error) {
	env, err := l.load(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		l.mu.Lock()
		delete(l.cache, path)
		l.mu.Unlock()
	}()

	seg := &oct.Segmentation{FoveaColumn: -1}
	for i, b := range env.BScans {
		curves := make(map[string]oct.Curve, len(b.Curves))
		for layer, rows := range b.Curves {
			curve := oct.Curve{Layer: layer, Rows: make([]float64, len(rows))}
			for c, r := range rows {
				if r == nil {
					curve.Rows[c] = oct.Missing()
				} else {
					curve.Rows[c] = *r
				}
			}
			curves[layer] = curve
		}
		if len(curves) == 0 {
			return nil, fmt.Errorf("b-scan %d carries no boundary curves", i)
		}
		seg.Curves = append(seg.Curves, curves)
	}

	if env.Fovea != nil {
		if env.Fovea.SLO != nil {
			seg.FoveaSLO = &oct.Point{X: env.Fovea.SLO.X, Y: env.Fovea.SLO.Y}
		}
		if env.Fovea.Column != nil {
			seg.FoveaColumn = *env.Fovea.Column
		}
	}
	if env.Disc != nil {
		seg.Disc = &oct.Disc{
			Center:   oct.Point{X: env.Disc.Center.X, Y: env.Disc.Center.Y},
			RadiusPx: env.Disc.RadiusPx,
		}
	}
	if env.Vessels != nil {
		maps := &oct.VesselMaps{}
		var err error
		if env.Vessels.All != "" {
			if maps.All, err = l.loadGray(env, env.Vessels.All); err != nil {
				return nil, fmt.Errorf("failed to load vessel map: %w", err)
			}
		}
		if env.Vessels.Artery != "" {
			if maps.Artery, err = l.loadGray(env, env.Vessels.Artery); err != nil {
				return nil, fmt.Errorf("failed to load artery map: %w", err)
			}
		}
		if env.Vessels.Vein != "" {
			if maps.Vein, err = l.loadGray(env, env.Vessels.Vein); err != nil {
				return nil, fmt.Errorf("failed to load vein map: %w", err)
			}
		}
		seg.Vessels = maps
	}
	return seg, nil
}

// loadGray reads a PNG sidecar relative to the envelope and flattens
// it to grayscale.
func (l *Loader) loadGray(env *envelope, name string) (*image.Gray, error) {
	f, err := os.Open(filepath.Join(env.dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if gray, ok := img.(*image.Gray); ok {
		return gray, nil
	}
	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return gray, nil
}

// WriteEnvelope saves a volume and its segmentation as an envelope
// with PNG sidecars, the inverse of Decode and Segment. Used by tests
// and by tools exporting scans for analysis elsewhere.
func WriteEnvelope(path string, vol *oct.Volume, seg *oct.Segmentation) error {
	dir := filepath.Dir(path)
	base := basename(path)

	env := envelope{
		SchemaVersion: envelopeSchemaVersion,
		Pattern:       vol.Pattern.String(),
		Eye:           vol.Laterality.String(),
	}
	env.Scale.X = vol.Scale.X
	env.Scale.Y = vol.Scale.Y
	env.Scale.Z = vol.Scale.Z

	if vol.SLO != nil && vol.SLO.Image != nil {
		name := base + "_slo.png"
		if err := writePNG(filepath.Join(dir, name), vol.SLO.Image); err != nil {
			return err
		}
		env.SLO = &envelopeSLO{Image: name, ScaleMMPerPx: vol.SLO.ScaleMMPerPx}
	}

	for i, b := range vol.BScans {
		eb := envelopeBScan{
			Columns:  b.Columns,
			Start:    envelopePoint{X: b.Pose.Start.X, Y: b.Pose.Start.Y},
			End:      envelopePoint{X: b.Pose.End.X, Y: b.Pose.End.Y},
			Circular: b.Pose.Circular,
			Curves:   map[string][]*float64{},
		}
		if b.Image != nil {
			name := fmt.Sprintf("%s_bscan_%03d.png", base, i)
			if err := writePNG(filepath.Join(dir, name), b.Image); err != nil {
				return err
			}
			eb.Image = name
		}
		if seg != nil && i < len(seg.Curves) {
			for layer, curve := range seg.Curves[i] {
				rows := make([]*float64, len(curve.Rows))
				for c := range curve.Rows {
					if curve.Valid(c) {
						v := curve.Rows[c]
						rows[c] = &v
					}
				}
				eb.Curves[layer] = rows
			}
		}
		env.BScans = append(env.BScans, eb)
	}

	if seg != nil {
		if seg.FoveaSLO != nil || seg.FoveaColumn >= 0 {
			env.Fovea = &envelopeFovea{}
			if seg.FoveaSLO != nil {
				env.Fovea.SLO = &envelopePoint{X: seg.FoveaSLO.X, Y: seg.FoveaSLO.Y}
			}
			if seg.FoveaColumn >= 0 {
				col := seg.FoveaColumn
				env.Fovea.Column = &col
			}
		}
		if seg.Disc != nil {
			env.Disc = &envelopeDisc{
				Center:   envelopePoint{X: seg.Disc.Center.X, Y: seg.Disc.Center.Y},
				RadiusPx: seg.Disc.RadiusPx,
			}
		}
		if seg.Vessels != nil {
			vessels := &envelopeVessels{}
			save := func(suffix string, img *image.Gray) (string, error) {
				if img == nil {
					return "", nil
				}
				name := base + suffix
				return name, writePNG(filepath.Join(dir, name), img)
			}
			var err error
			if vessels.All, err = save("_vessels.png", seg.Vessels.All); err != nil {
				return err
			}
			if vessels.Artery, err = save("_artery.png", seg.Vessels.Artery); err != nil {
				return err
			}
			if vessels.Vein, err = save("_vein.png", seg.Vessels.Vein); err != nil {
				return err
			}
			if vessels.All != "" || vessels.Artery != "" || vessels.Vein != "" {
				env.Vessels = vessels
			}
		}
	}

	data, err := json.MarshalIndent(&env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}
	return nil
}

func basename(path string) string {
	b := filepath.Base(path)
	return b[:len(b)-len(filepath.Ext(b))]
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return nil
}
