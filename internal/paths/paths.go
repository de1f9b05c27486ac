package paths

import (
	"path/filepath"
	"strings"
)

// Paths holds the working locations derived from one input video.
type Paths struct {
	FramesDir     string
	EdgesDir      string
	FramesArchive string
	EdgesArchive  string
}

// Resolve derives the temporary directories and archive paths for inputPath.
// Everything lands in outputDir when it is set, otherwise next to the video.
func Resolve(inputPath, outputDir string) Paths {
	var baseDir string
	if outputDir != "" {
		baseDir = absolute(outputDir)
	} else {
		baseDir = filepath.Dir(absolute(inputPath))
	}

	stem := Stem(inputPath)

	return Paths{
		FramesDir:     filepath.Join(baseDir, stem+"_images_tmp"),
		EdgesDir:      filepath.Join(baseDir, stem+"_edges_tmp"),
		FramesArchive: filepath.Join(baseDir, stem+"_images.zip"),
		EdgesArchive:  filepath.Join(baseDir, stem+"_edges.zip"),
	}
}

// Stem returns the base name of p without its final extension.
// Dot files such as ".clip" keep their full name.
func Stem(p string) string {
	base := filepath.Base(p)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return base
	}
	return stem
}

func absolute(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}
