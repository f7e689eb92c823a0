// Package cluster implements k-means clustering over 2-D fixed-point
// feature points with silhouette-based quality scoring, the streaming
// re-clustering variant, and the DTW pulse-sequence distance.
package cluster

import (
	"errors"

	"github.com/herlein/rflab/pkg/fixed"
	"github.com/herlein/rflab/pkg/signal"
)

// Engine limits
const (
	// MaxK is the cluster count limit
	MaxK = 5

	// MaxPoints is the dataset capacity
	MaxPoints = 4096

	// MaxIterations bounds the k-means optimization loop
	MaxIterations = 100

	// DefaultK is used when a zero k is requested
	DefaultK = 3

	// ReclusterInterval is how many streamed points trigger a re-run
	ReclusterInterval = 50

	// MaxDTWLength bounds DTW sequence comparison
	MaxDTWLength = 128
)

// ErrNotImplemented reports a clustering mode that is declared but
// intentionally unimplemented (hierarchical clustering).
var ErrNotImplemented = errors.New("cluster: operation not implemented")

// Point is a 2-D feature point with its current cluster assignment.
type Point struct {
	X, Y    fixed.Fixed
	Cluster uint8
}

// Dataset is a statically sized collection of points. Add silently drops
// points beyond MaxPoints; callers detect saturation via Count.
type Dataset struct {
	Points [MaxPoints]Point
	Count  uint16
}

// Add appends a point, reporting false when the dataset is full.
func (d *Dataset) Add(p Point) bool {
	if d.Count >= MaxPoints {
		return false
	}
	d.Points[d.Count] = p
	d.Count++
	return true
}

// Reset empties the dataset.
func (d *Dataset) Reset() {
	d.Count = 0
}

// Bounds returns the bounding box of the dataset. An empty dataset yields
// the unit box.
func (d *Dataset) Bounds() (minX, maxX, minY, maxY fixed.Fixed) {
	if d.Count == 0 {
		return 0, fixed.One, 0, fixed.One
	}

	minX, maxX = d.Points[0].X, d.Points[0].X
	minY, maxY = d.Points[0].Y, d.Points[0].Y
	for i := uint16(1); i < d.Count; i++ {
		p := &d.Points[i]
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return minX, maxX, minY, maxY
}

// Centroid is one k-means cluster center with its population and inertia.
type Centroid struct {
	X, Y       fixed.Fixed
	PointCount uint16
	Inertia    fixed.Fixed
}

// Result is a completed k-means run. When Converged is true, the centroid
// point counts sum to the dataset count.
type Result struct {
	K            uint8
	Centroids    [MaxK]Centroid
	Iterations   uint8
	Converged    bool
	TotalInertia fixed.Fixed
	Silhouette   fixed.Fixed
}

// Metric selects a point distance function.
type Metric uint8

// Supported distance metrics
const (
	MetricEuclidean Metric = iota
	MetricManhattan
	MetricCosine
)

// Distance returns the distance between two points under the metric.
// Cosine returns 1 - similarity so that smaller is closer.
func (m Metric) Distance(a, b Point) fixed.Fixed {
	switch m {
	case MetricManhattan:
		return (a.X - b.X).Abs() + (a.Y - b.Y).Abs()
	case MetricCosine:
		dot := a.X.Mul(b.X) + a.Y.Mul(b.Y)
		na := fixed.Sqrt(a.X.Mul(a.X) + a.Y.Mul(a.Y))
		nb := fixed.Sqrt(b.X.Mul(b.X) + b.Y.Mul(b.Y))
		if na == 0 || nb == 0 {
			return fixed.Max
		}
		return fixed.One - dot.Div(na.Mul(nb))
	default:
		dx := a.X - b.X
		dy := a.Y - b.Y
		return fixed.Sqrt(fixed.AddSat(dx.Mul(dx), dy.Mul(dy)))
	}
}

// KMeans clusters the dataset into k groups. A zero k, or a k above
// MaxK, becomes DefaultK; k is then clamped to the dataset size. Point cluster
// assignments are written back into the dataset.
func KMeans(data *Dataset, k uint8) Result {
	var result Result

	if k == 0 || k > MaxK {
		k = DefaultK
	}
	if uint16(k) > data.Count {
		k = uint8(data.Count)
	}
	if k == 0 {
		return result
	}
	result.K = k

	// Seed with the first k points; deterministic given input order
	for i := uint8(0); i < k; i++ {
		result.Centroids[i].X = data.Points[i].X
		result.Centroids[i].Y = data.Points[i].Y
	}

	iterate(&result, data)
	result.Silhouette = Silhouette(data, &result)
	return result
}

func iterate(result *Result, data *Dataset) {
	threshold := convergenceThreshold(data)

	for iter := uint8(0); iter < MaxIterations; iter++ {
		prev := result.Centroids

		assignPoints(result, data)
		updateCentroids(result, data)

		result.Iterations = iter + 1

		if centroidMovement(&prev, result) < threshold {
			result.Converged = true
			break
		}
	}

	result.TotalInertia = 0
	for i := uint8(0); i < result.K; i++ {
		result.TotalInertia = fixed.AddSat(result.TotalInertia, result.Centroids[i].Inertia)
	}
}

// convergenceThreshold scales the centroid-movement bound with the data:
// the absolute 0.5% floor is far too tight for microsecond-scale features,
// so wide datasets get a relative bound instead.
func convergenceThreshold(data *Dataset) fixed.Fixed {
	minX, maxX, minY, maxY := data.Bounds()
	rangeSum := fixed.AddSat(maxX-minX, maxY-minY)

	threshold := fixed.One / 200
	relative := rangeSum.DivInt(1000)
	if relative > threshold {
		threshold = relative
	}
	return threshold
}

func assignPoints(result *Result, data *Dataset) {
	for i := uint8(0); i < result.K; i++ {
		result.Centroids[i].PointCount = 0
		result.Centroids[i].Inertia = 0
	}

	for i := uint16(0); i < data.Count; i++ {
		p := &data.Points[i]

		best := uint8(0)
		minDist := fixed.Max
		for j := uint8(0); j < result.K; j++ {
			c := Point{X: result.Centroids[j].X, Y: result.Centroids[j].Y}
			d := MetricEuclidean.Distance(*p, c)
			if d < minDist {
				minDist = d
				best = j
			}
		}

		p.Cluster = best
		result.Centroids[best].PointCount++
		result.Centroids[best].Inertia = fixed.AddSat(
			result.Centroids[best].Inertia, fixed.MulSat(minDist, minDist))
	}
}

func updateCentroids(result *Result, data *Dataset) {
	var sumX, sumY [MaxK]int64
	var counts [MaxK]uint16

	for i := uint16(0); i < data.Count; i++ {
		c := data.Points[i].Cluster
		sumX[c] += int64(data.Points[i].X)
		sumY[c] += int64(data.Points[i].Y)
		counts[c]++
	}

	// Empty clusters keep their previous centroid
	for i := uint8(0); i < result.K; i++ {
		if counts[i] > 0 {
			result.Centroids[i].X = fixed.Fixed(sumX[i] / int64(counts[i]))
			result.Centroids[i].Y = fixed.Fixed(sumY[i] / int64(counts[i]))
		}
	}
}

func centroidMovement(prev *[MaxK]Centroid, current *Result) fixed.Fixed {
	var total fixed.Fixed
	for i := uint8(0); i < current.K; i++ {
		dx := current.Centroids[i].X - prev[i].X
		dy := current.Centroids[i].Y - prev[i].Y
		total = fixed.AddSat(total, dx.Abs()+dy.Abs())
	}
	return total
}

// Silhouette computes the mean silhouette score of the current
// assignments, in [-1, 1]. Fewer than two clusters or points yields 0.
func Silhouette(data *Dataset, result *Result) fixed.Fixed {
	if result.K < 2 || data.Count < 2 {
		return 0
	}

	var total fixed.Fixed

	for i := uint16(0); i < data.Count; i++ {
		own := data.Points[i].Cluster

		// a(i): mean distance to same-cluster peers
		var a fixed.Fixed
		var ownCount uint16
		for j := uint16(0); j < data.Count; j++ {
			if i != j && data.Points[j].Cluster == own {
				a = fixed.AddSat(a, MetricEuclidean.Distance(data.Points[i], data.Points[j]))
				ownCount++
			}
		}
		if ownCount > 0 {
			a = a.DivInt(int32(ownCount))
		}

		// b(i): smallest mean distance to any other cluster
		b := fixed.Max
		for c := uint8(0); c < result.K; c++ {
			if c == own {
				continue
			}
			var dist fixed.Fixed
			var count uint16
			for j := uint16(0); j < data.Count; j++ {
				if data.Points[j].Cluster == c {
					dist = fixed.AddSat(dist, MetricEuclidean.Distance(data.Points[i], data.Points[j]))
					count++
				}
			}
			if count > 0 {
				dist = dist.DivInt(int32(count))
				if dist < b {
					b = dist
				}
			}
		}

		maxAB := fixed.MaxOf(a, b)
		if maxAB > 0 {
			total += (b - a).Div(maxAB)
		}
	}

	return total.DivInt(int32(data.Count))
}

// FindOptimalK runs k-means for each k in [kMin, kMax] and returns the k
// with the best silhouette score.
func FindOptimalK(data *Dataset, kMin, kMax uint8) uint8 {
	if kMin == 0 {
		kMin = 1
	}
	bestScore := fixed.Min
	bestK := kMin

	for k := kMin; k <= kMax && k <= MaxK; k++ {
		result := KMeans(data, k)
		if result.Silhouette > bestScore {
			bestScore = result.Silhouette
			bestK = k
		}
	}

	return bestK
}

// ExtractFrameFeatures maps a frame onto clustering feature points:
// duration vs length, and RSSI vs frequency in MHz.
func ExtractFrameFeatures(frame *signal.Frame, out []Point) int {
	if frame.Length == 0 || len(out) == 0 {
		return 0
	}

	n := 0
	out[n] = Point{
		X: fixed.FromInt(int32(frame.DurationUs)),
		Y: fixed.FromInt(int32(frame.Length)),
	}
	n++

	if n < len(out) {
		out[n] = Point{
			X: fixed.FromInt(int32(frame.RSSIDBm)),
			Y: fixed.FromInt(int32(frame.FrequencyHz / 1000000)),
		}
		n++
	}

	return n
}

// ExtractPulseFeatures maps consecutive mark/space pulse pairs onto
// feature points (mark width, space width).
func ExtractPulseFeatures(pulses []signal.Pulse, out []Point) int {
	if len(pulses) < 2 {
		return 0
	}

	n := 0
	for i := 0; i+1 < len(pulses) && n < len(out); i += 2 {
		out[n] = Point{
			X: fixed.FromInt(int32(pulses[i].WidthUs)),
			Y: fixed.FromInt(int32(pulses[i+1].WidthUs)),
		}
		n++
	}
	return n
}

// Hierarchical clustering is declared for completeness but not
// implemented; it always returns ErrNotImplemented.
func Hierarchical(data *Dataset, metric Metric) error {
	return ErrNotImplemented
}
