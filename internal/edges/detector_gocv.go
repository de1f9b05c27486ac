//go:build gocv

package edges

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// NewDetector returns the edge detector compiled into this binary.
func NewDetector() Detector {
	return OpenCV{}
}

// OpenCV runs the filter chain through OpenCV. Build with -tags gocv.
type OpenCV struct{}

func (OpenCV) DetectFile(src, dst string) error {
	img := gocv.IMRead(src, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return fmt.Errorf("%w: %s", ErrUndecodable, src)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(BlurSize, BlurSize), BlurSigma, BlurSigma, gocv.BorderDefault)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, LowThreshold, HighThreshold)

	if ok := gocv.IMWrite(dst, edges); !ok {
		return fmt.Errorf("write edge map %s", dst)
	}
	return nil
}
