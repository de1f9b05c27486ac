package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Info describes the first video stream of a container as reported by ffprobe.
type Info struct {
	Width    int
	Height   int
	Codec    string
	Frames   int     // nominal frame count from the container, 0 when unknown
	Duration float64 // seconds
}

// FFmpegDecoder decodes videos by piping raw RGB frames out of an ffmpeg process.
// FFmpegBin and FFprobeBin are looked up in PATH unless they contain a separator.
type FFmpegDecoder struct {
	FFmpegBin    string
	FFprobeBin   string
	ProbeTimeout time.Duration
}

func NewFFmpegDecoder(ffmpegBin, ffprobeBin string, probeTimeout time.Duration) *FFmpegDecoder {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	return &FFmpegDecoder{FFmpegBin: ffmpegBin, FFprobeBin: ffprobeBin, ProbeTimeout: probeTimeout}
}

type probeOutput struct {
	Streams []struct {
		CodecType    string            `json:"codec_type"`
		CodecName    string            `json:"codec_name"`
		Width        int               `json:"width"`
		Height       int               `json:"height"`
		NbFrames     string            `json:"nb_frames"`
		Tags         map[string]string `json:"tags"`
		SideDataList []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads the geometry of the first video stream in path.
func (d *FFmpegDecoder) Probe(path string) (Info, error) {
	if d.FFprobeBin == "" || d.FFprobeBin == "ffprobe" {
		raw, err := ffmpeg.ProbeWithTimeout(path, d.ProbeTimeout, ffmpeg.KwArgs{})
		if err != nil {
			return Info{}, fmt.Errorf("ffprobe: %w", err)
		}
		return parseProbe(raw)
	}

	raw, err := d.probeWith(path)
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(raw)
}

// probeWith runs a non-default ffprobe binary with the same arguments
// ffmpeg-go's ProbeWithTimeout uses, since that helper always execs "ffprobe".
func (d *FFmpegDecoder) probeWith(path string) (string, error) {
	ctx := context.Background()
	if d.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.ProbeTimeout)
		defer cancel()
	}

	args := ffmpeg.ConvertKwargsToCmdLineArgs(ffmpeg.KwArgs{
		"show_format":  "",
		"show_streams": "",
		"of":           "json",
	})
	cmd := exec.CommandContext(ctx, d.FFprobeBin, append(args, path)...)
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("[%s] %w", strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}

func parseProbe(raw string) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return Info{}, fmt.Errorf("video stream has invalid size %dx%d", s.Width, s.Height)
		}

		info := Info{Width: s.Width, Height: s.Height, Codec: s.CodecName}
		info.Frames, _ = strconv.Atoi(s.NbFrames)
		info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)

		// ffmpeg applies display rotation on decode, so quarter turns swap the frame size.
		rotation := 0.0
		if r, ok := s.Tags["rotate"]; ok {
			rotation, _ = strconv.ParseFloat(r, 64)
		}
		for _, sd := range s.SideDataList {
			if sd.Rotation != 0 {
				rotation = sd.Rotation
			}
		}
		if int(rotation)%180 != 0 {
			info.Width, info.Height = info.Height, info.Width
		}
		return info, nil
	}

	return Info{}, errors.New("no video stream found")
}

// Open probes path and starts an ffmpeg process streaming its frames.
func (d *FFmpegDecoder) Open(path string) (Stream, error) {
	info, err := d.Probe(path)
	if err != nil {
		return nil, &VideoOpenError{Path: path, Err: err}
	}

	cmd := ffmpeg.Input(path).
		Output("pipe:", ffmpeg.KwArgs{
			"format":   "rawvideo",
			"pix_fmt":  "rgb24",
			"vsync":    "passthrough",
			"loglevel": "error",
		}).
		SetFfmpegPath(d.ffmpegBin()).
		Silent(true).
		Compile()

	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, &VideoOpenError{Path: path, Err: fmt.Errorf("start ffmpeg: %w", err)}
	}

	return &ffmpegStream{
		path:   path,
		cmd:    cmd,
		pipe:   pipe,
		stderr: stderr,
		width:  info.Width,
		height: info.Height,
		buf:    make([]byte, info.Width*info.Height*3),
	}, nil
}

func (d *FFmpegDecoder) ffmpegBin() string {
	if d.FFmpegBin == "" {
		return "ffmpeg"
	}
	return d.FFmpegBin
}

type ffmpegStream struct {
	path   string
	cmd    *exec.Cmd
	pipe   io.ReadCloser
	stderr *bytes.Buffer
	width  int
	height int
	buf    []byte
	read   int

	done    bool
	waitErr error
}

// Next reads one rgb24 frame. A short trailing read ends the stream when
// ffmpeg exited cleanly. A failed exit before the first frame means the
// video could not be decoded at all and is reported as a VideoOpenError.
func (s *ffmpegStream) Next() (image.Image, error) {
	if s.done {
		return nil, io.EOF
	}

	_, err := io.ReadFull(s.pipe, s.buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		s.finish()
		switch {
		case s.waitErr == nil:
			return nil, io.EOF
		case s.read == 0:
			return nil, &VideoOpenError{Path: s.path, Err: s.waitErr}
		default:
			return nil, fmt.Errorf("decode stopped after %d frames: %w", s.read, s.waitErr)
		}
	}
	if err != nil {
		return nil, err
	}
	s.read++

	img := image.NewNRGBA(image.Rect(0, 0, s.width, s.height))
	for i, j := 0, 0; i < len(s.buf); i, j = i+3, j+4 {
		img.Pix[j] = s.buf[i]
		img.Pix[j+1] = s.buf[i+1]
		img.Pix[j+2] = s.buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

func (s *ffmpegStream) finish() {
	s.done = true
	if err := s.cmd.Wait(); err != nil {
		s.waitErr = fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
}

// Close stops ffmpeg if it is still running and reports how the process
// ended. Killing a stream that was not read to the end is not an error.
func (s *ffmpegStream) Close() error {
	if !s.done {
		s.pipe.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		s.done = true
		_ = s.cmd.Wait()
		return nil
	}
	return s.waitErr
}
