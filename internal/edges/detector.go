//go:build !gocv

package edges

// NewDetector returns the edge detector compiled into this binary.
func NewDetector() Detector {
	return Canny{}
}
