package edges

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"videoedges/internal/extract"
)

// Suffix is appended to a frame's stem to name its edge map.
const Suffix = "_canny"

// Fixed filter parameters.
const (
	BlurSize      = 5
	BlurSigma     = 1.4
	LowThreshold  = 100
	HighThreshold = 200
)

// ErrUndecodable is returned by a Detector when the source image cannot be read.
var ErrUndecodable = errors.New("undecodable image")

// Detector writes the edge map of the image at src to dst.
type Detector interface {
	DetectFile(src, dst string) error
}

// OutputName maps a frame file name to its edge map file name.
func OutputName(frameName string) string {
	stem := strings.TrimSuffix(frameName, filepath.Ext(frameName))
	return stem + Suffix + extract.FrameExt
}

// Transform runs det over every frame in framesDir, in name order, writing
// the results to edgesDir. Frames that fail to decode are skipped. It returns
// the number of edge maps written.
func Transform(det Detector, framesDir, edgesDir string) (int, error) {
	if err := os.MkdirAll(edgesDir, 0o755); err != nil {
		return 0, fmt.Errorf("create edges dir: %w", err)
	}

	entries, err := os.ReadDir(framesDir)
	if err != nil {
		return 0, fmt.Errorf("read frames dir: %w", err)
	}

	processed := 0
	for _, entry := range entries {
		if entry.IsDir() || !isFrame(entry.Name()) {
			continue
		}

		src := filepath.Join(framesDir, entry.Name())
		dst := filepath.Join(edgesDir, OutputName(entry.Name()))
		if err := det.DetectFile(src, dst); err != nil {
			if errors.Is(err, ErrUndecodable) {
				continue
			}
			return processed, fmt.Errorf("edges for %s: %w", entry.Name(), err)
		}
		processed++
	}

	return processed, nil
}

func isFrame(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), extract.FrameExt)
}
