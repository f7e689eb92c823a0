package cluster

// Streaming maintains an append-only dataset and re-runs k-means every
// ReclusterInterval points. Snapshots return the last completed run.
type Streaming struct {
	dataset Dataset
	result  Result
	k       uint8
	active  bool
}

// NewStreaming returns a streaming clusterer targeting k clusters.
func NewStreaming(k uint8) *Streaming {
	if k == 0 || k > MaxK {
		k = DefaultK
	}
	return &Streaming{k: k, active: true}
}

// Add appends a point, re-clustering when the interval fills. Points
// beyond the dataset capacity are dropped; the caller detects saturation
// via Count.
func (s *Streaming) Add(p Point) {
	if !s.active {
		return
	}
	if !s.dataset.Add(p) {
		return
	}

	if s.dataset.Count%ReclusterInterval == 0 {
		s.result = KMeans(&s.dataset, s.k)
	}
}

// Result returns a copy of the last completed re-clustering.
func (s *Streaming) Result() Result {
	return s.result
}

// Count returns the number of accepted points.
func (s *Streaming) Count() uint16 {
	return s.dataset.Count
}

// Reset drops all points and the last result.
func (s *Streaming) Reset() {
	s.dataset.Reset()
	s.result = Result{}
}
