package grid

import (
	"gonum.org/v1/gonum/spatial/kdtree"
)

// sample is a valid map pixel held in the KD-tree used for nearest
// neighbour lookups.
type sample struct {
	X, Y  float64
	Value float64
}

// Compare implements the kdtree.Comparable interface
func (p sample) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(sample)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p sample) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two samples
func (p sample) Distance(c kdtree.Comparable) float64 {
	q := c.(sample)
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy // Return squared distance for efficiency
}

// samples is a collection of sample that satisfies kdtree.Interface
type samples []sample

func (p samples) Index(i int) kdtree.Comparable         { return p[i] }
func (p samples) Len() int                              { return len(p) }
func (p samples) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p samples) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(samplePlane{samples: p, Dim: d}, kdtree.MedianOfRandoms(samplePlane{samples: p, Dim: d}, 100))
}

// samplePlane implements sort.Interface and kdtree.SortSlicer for samples
type samplePlane struct {
	samples
	kdtree.Dim
}

func (p samplePlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.samples[i].X < p.samples[j].X
	case 1:
		return p.samples[i].Y < p.samples[j].Y
	default:
		panic("illegal dimension")
	}
}

func (p samplePlane) Slice(start, end int) kdtree.SortSlicer {
	return samplePlane{samples: p.samples[start:end], Dim: p.Dim}
}

func (p samplePlane) Swap(i, j int) {
	p.samples[i], p.samples[j] = p.samples[j], p.samples[i]
}

// sampler answers nearest-valid-sample queries over a fixed set of
// map pixels.
type sampler struct {
	tree *kdtree.Tree
}

// newSampler builds a sampler, or returns nil when there is nothing
// to sample from.
func newSampler(points samples) *sampler {
	if len(points) == 0 {
		return nil
	}
	return &sampler{tree: kdtree.New(points, true)}
}

// nearest returns the value of the closest sample and the squared
// pixel distance to it.
func (s *sampler) nearest(x, y float64) (float64, float64) {
	got, dist := s.tree.Nearest(sample{X: x, Y: y})
	return got.(sample).Value, dist
}
