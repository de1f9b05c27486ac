package extract

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/kovidgoyal/imaging"
)

// FrameExt is the extension of every frame file written by Frames.
const FrameExt = ".png"

// Decoder opens a video for sequential frame reads.
type Decoder interface {
	Open(path string) (Stream, error)
}

// Stream yields decoded frames in presentation order. Next returns io.EOF
// once the video has no more frames.
type Stream interface {
	Next() (image.Image, error)
	Close() error
}

// VideoOpenError reports a video the decoder could not open.
type VideoOpenError struct {
	Path string
	Err  error
}

func (e *VideoOpenError) Error() string {
	return fmt.Sprintf("could not open video %s: %v", e.Path, e.Err)
}

func (e *VideoOpenError) Unwrap() error { return e.Err }

// FrameName returns the file name of the 1-based frame index.
func FrameName(index int) string {
	return fmt.Sprintf("%04d%s", index, FrameExt)
}

// Frames decodes every frame of videoPath into framesDir as 0001.png,
// 0002.png, ... and returns how many were written.
func Frames(dec Decoder, videoPath, framesDir string) (written int, err error) {
	stream, err := dec.Open(videoPath)
	if err != nil {
		var openErr *VideoOpenError
		if errors.As(err, &openErr) {
			return 0, err
		}
		return 0, &VideoOpenError{Path: videoPath, Err: err}
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close video stream: %w", cerr)
		}
	}()

	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return 0, fmt.Errorf("create frames dir: %w", err)
	}

	for {
		frame, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		var openErr *VideoOpenError
		if errors.As(err, &openErr) {
			return written, err
		}
		if err != nil {
			return written, fmt.Errorf("read frame %d: %w", written+1, err)
		}

		outPath := filepath.Join(framesDir, FrameName(written+1))
		if err := imaging.Save(frame, outPath); err != nil {
			return written, fmt.Errorf("write frame %s: %w", outPath, err)
		}
		written++
	}
}
