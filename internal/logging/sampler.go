package logging

import "sync"

// ProgressSampler suppresses repetitive progress logs while keeping a line
// whenever the stage changes or the percentage crosses a bucket boundary.
// It is safe for concurrent use.
type ProgressSampler struct {
	mu         sync.Mutex
	bucketSize float64
	lastStage  string
	lastBucket int
}

// NewProgressSampler constructs a sampler with the given bucket size in
// percent. Non-positive sizes default to 10.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress sample for stage at fraction (0..1)
// should be logged.
func (s *ProgressSampler) ShouldLog(stage string, fraction float64) bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	emit := false
	if stage != s.lastStage {
		s.lastStage = stage
		s.lastBucket = -1
		emit = true
	}

	percent := fraction * 100
	if percent < 0 {
		return emit
	}
	if percent > 100 {
		percent = 100
	}
	bucket := int(percent / s.bucketSize)
	if bucket > s.lastBucket {
		s.lastBucket = bucket
		emit = true
	}
	return emit
}
