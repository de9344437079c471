package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 10},
		{"default bucket size for negative", -1, 10},
		{"custom bucket size", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(1, 5, 10) {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSampler_BucketsPerGallery(t *testing.T) {
	s := NewProgressSampler(25)

	if !s.ShouldLog(1, 1, 20) {
		t.Error("first report for a gallery should log")
	}
	if s.ShouldLog(1, 2, 20) {
		t.Error("same bucket should not log again")
	}
	if !s.ShouldLog(1, 5, 20) {
		t.Error("crossing 25% should log")
	}
	if !s.ShouldLog(2, 1, 20) {
		t.Error("different gallery should log")
	}
	if !s.ShouldLog(2, 20, 20) {
		t.Error("completion should log")
	}
	if s.ShouldLog(2, 20, 20) {
		t.Error("repeated completion should not log")
	}
}

func TestProgressSampler_UnknownTotal(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.ShouldLog(3, 1, 0) {
		t.Error("first report should log")
	}
	if s.ShouldLog(3, 2, 0) {
		t.Error("unknown total should not log again for same gallery")
	}
	s.Reset()
	if !s.ShouldLog(3, 3, 0) {
		t.Error("reset should allow the next report")
	}
}
