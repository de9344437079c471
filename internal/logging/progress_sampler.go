package logging

// ProgressSampler suppresses repetitive page progress logs while preserving
// signal when the gallery changes or a percentage bucket is crossed.
type ProgressSampler struct {
	bucketSize  float64
	lastGallery int64
	lastBucket  int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 10%) or when a different gallery reports.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a page progress event should be logged. A total
// of zero or less means the page count is unknown and only gallery changes log.
func (s *ProgressSampler) ShouldLog(galleryID int64, current, total int) bool {
	if s == nil {
		return true
	}
	emit := false
	if galleryID != s.lastGallery {
		s.lastGallery = galleryID
		s.lastBucket = -1
		emit = true
	}
	if total > 0 {
		percent := float64(current) / float64(total) * 100
		bucket := int(percent / s.bucketSize)
		if current >= total {
			bucket = int(100 / s.bucketSize)
		}
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastGallery = 0
	s.lastBucket = -1
}
