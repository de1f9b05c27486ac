package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/kovidgoyal/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"videoedges/internal/archive"
	"videoedges/internal/config"
	"videoedges/internal/extract"
)

type gradientDecoder struct {
	frames  int
	openErr error
}

func (d gradientDecoder) Open(string) (extract.Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return &gradientStream{left: d.frames}, nil
}

type gradientStream struct{ left int }

func (s *gradientStream) Next() (image.Image, error) {
	if s.left == 0 {
		return nil, io.EOF
	}
	s.left--
	img := imaging.New(24, 24, color.NRGBA{A: 255})
	for y := 0; y < 24; y++ {
		for x := 12; x < 24; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	return img, nil
}

func (s *gradientStream) Close() error { return nil }

func testApp(t *testing.T, dec extract.Decoder) (app, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	return app{
		cfg:     &config.Config{LogLevel: "info"},
		log:     zap.NewNop(),
		stdout:  out,
		decoder: dec,
	}, out
}

func TestRunUsage(t *testing.T) {
	for _, args := range [][]string{
		{"videoedges"},
		{"videoedges", "a.mp4", "out", "extra"},
	} {
		a, out := testApp(t, gradientDecoder{})
		code := run(context.Background(), args, a)
		assert.Equal(t, 1, code, args)
		assert.Equal(t, usageLine+"\n", out.String())
	}
}

func TestRunMissingInput(t *testing.T) {
	a, out := testApp(t, gradientDecoder{frames: 1})
	code := run(context.Background(), []string{"videoedges", filepath.Join(t.TempDir(), "nope.mp4")}, a)

	assert.Equal(t, 1, code)
	assert.Equal(t, "Error: input video file does not exist\n", out.String())
}

func TestRunSuccess(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(video, []byte("x"), 0o644))

	a, out := testApp(t, gradientDecoder{frames: 3})
	code := run(context.Background(), []string{"videoedges", video}, a)
	require.Equal(t, 0, code)

	framesZip := filepath.Join(dir, "clip_images.zip")
	edgesZip := filepath.Join(dir, "clip_edges.zip")
	assert.Equal(t,
		"Done. Frames: 3\nCreated: "+framesZip+"\nCreated: "+edgesZip+"\n",
		out.String(),
	)

	names, err := archive.Entries(edgesZip)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_canny.png", "0002_canny.png", "0003_canny.png"}, names)
	assert.NoDirExists(t, filepath.Join(dir, "clip_images_tmp"))
	assert.NoDirExists(t, filepath.Join(dir, "clip_edges_tmp"))
}

func TestRunZeroFrames(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "blank.mp4")
	require.NoError(t, os.WriteFile(video, nil, 0o644))
	outDir := filepath.Join(dir, "out")

	a, out := testApp(t, gradientDecoder{})
	code := run(context.Background(), []string{"videoedges", video, outDir}, a)

	assert.Equal(t, 0, code)
	assert.Equal(t, "No frames extracted from the video.\n", out.String())
	assert.FileExists(t, filepath.Join(outDir, "blank_images.zip"))
	assert.FileExists(t, filepath.Join(outDir, "blank_edges.zip"))
}

func TestRunOpenFailure(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(video, []byte("x"), 0o644))

	a, out := testApp(t, gradientDecoder{openErr: errors.New("unsupported codec")})
	code := run(context.Background(), []string{"videoedges", video}, a)

	assert.Equal(t, 1, code)
	assert.Empty(t, out.String())
	assert.NoDirExists(t, filepath.Join(dir, "clip_images_tmp"))
}

func TestRunWritesMetricsTextfile(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(video, []byte("x"), 0o644))
	prom := filepath.Join(dir, "videoedges.prom")

	a, _ := testApp(t, gradientDecoder{frames: 2})
	a.cfg.MetricsTextfile = prom
	require.Equal(t, 0, run(context.Background(), []string{"videoedges", video}, a))

	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), "videoedges_frames_extracted_total 2")
	assert.Contains(t, string(data), `videoedges_runs_total{status="completed"} 1`)
}

func TestRunDashPrefixedInput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "-clip.mp4"), []byte("x"), 0o644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	a, out := testApp(t, gradientDecoder{frames: 1})
	code := run(context.Background(), []string{"videoedges", "-clip.mp4", "-out"}, a)
	require.Equal(t, 0, code, out.String())

	assert.Contains(t, out.String(), "Done. Frames: 1\n")
	assert.FileExists(t, filepath.Join(dir, "-out", "-clip_images.zip"))
	assert.FileExists(t, filepath.Join(dir, "-out", "-clip_edges.zip"))
}

func TestRunHelpIsTreatedAsPath(t *testing.T) {
	a, out := testApp(t, gradientDecoder{frames: 1})
	code := run(context.Background(), []string{"videoedges", "--help"}, a)

	assert.Equal(t, 1, code)
	assert.Equal(t, "Error: input video file does not exist\n", out.String())
}
