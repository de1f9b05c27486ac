package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"videoedges/internal/archive"
	"videoedges/internal/edges"
	"videoedges/internal/extract"
	"videoedges/internal/metrics"
	"videoedges/internal/paths"
)

// ErrInputNotFound is returned when the input path is not an existing regular file.
var ErrInputNotFound = errors.New("input video file does not exist")

// State is a step of a run, recorded in Result.States as it is entered.
type State string

const (
	StateInit        State = "init"
	StateResolved    State = "resolved"
	StateCleaned     State = "cleaned"
	StateExtracted   State = "extracted"
	StateEmpty       State = "empty"
	StateTransformed State = "transformed"
	StateArchived    State = "archived"
	StateCleanup     State = "cleanup"
	StateDone        State = "done"
)

// Publisher uploads a finished archive and returns where it was stored.
type Publisher interface {
	UploadFile(ctx context.Context, localPath string) (string, error)
}

// Prober is implemented by decoders that can describe a video without
// decoding it. The runner only calls it when debug logging is on.
type Prober interface {
	Probe(path string) (extract.Info, error)
}

// Result summarises one run.
type Result struct {
	RunID          string
	Frames         int
	EdgesProcessed int
	Empty          bool
	FramesArchive  string
	EdgesArchive   string
	Published      []string
	States         []State
}

type Runner struct {
	decoder   extract.Decoder
	detector  edges.Detector
	publisher Publisher
	metrics   *metrics.Recorder
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewRunner(decoder extract.Decoder, detector edges.Detector, rec *metrics.Recorder, logger *zap.Logger) *Runner {
	if rec == nil {
		rec = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		decoder:  decoder,
		detector: detector,
		metrics:  rec,
		logger:   logger,
		tracer:   otel.Tracer("pipeline"),
	}
}

// WithPublisher makes the runner upload both archives after they are written.
func (r *Runner) WithPublisher(p Publisher) *Runner {
	r.publisher = p
	return r
}

// Run extracts the frames of inputVideo, computes their edge maps and writes
// both sets as zip archives into outputDir, or next to the video when
// outputDir is empty. Temporary directories are removed on every exit path
// once paths have been resolved.
func (r *Runner) Run(ctx context.Context, inputVideo, outputDir string) (res Result, err error) {
	res.RunID = uuid.NewString()
	log := r.logger.With(zap.String("run_id", res.RunID), zap.String("video", inputVideo))

	ctx, span := r.tracer.Start(ctx, "Runner.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", res.RunID),
		attribute.String("run.video", inputVideo),
	)

	totalTimer := time.Now()
	defer func() {
		status := "completed"
		switch {
		case err != nil:
			status = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case res.Empty:
			status = "empty"
		}
		r.metrics.Runs.WithLabelValues(status).Inc()
		r.metrics.ObserveStage("total", totalTimer)
	}()

	res.enter(StateInit, log)

	info, statErr := os.Stat(inputVideo)
	if statErr != nil || !info.Mode().IsRegular() {
		return res, fmt.Errorf("%w: %s", ErrInputNotFound, inputVideo)
	}
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return res, fmt.Errorf("create output dir: %w", err)
		}
	}

	p := paths.Resolve(inputVideo, outputDir)
	res.FramesArchive = p.FramesArchive
	res.EdgesArchive = p.EdgesArchive
	res.enter(StateResolved, log)

	_ = r.stage(ctx, "clean", func(context.Context) error {
		r.removeStale(p, log)
		return nil
	})
	res.enter(StateCleaned, log)

	defer func() {
		_ = r.stage(ctx, "cleanup", func(context.Context) error {
			r.removeTemp(p, log)
			return nil
		})
		res.enter(StateCleanup, log)
		if err == nil {
			res.enter(StateDone, log)
		}
	}()

	r.logVideoInfo(inputVideo, log)

	err = r.stage(ctx, "extract", func(context.Context) error {
		n, err := extract.Frames(r.decoder, inputVideo, p.FramesDir)
		res.Frames = n
		r.metrics.FramesExtracted.Add(float64(n))
		return err
	})
	if err != nil {
		log.Error("frame extraction failed", zap.Error(err))
		return res, err
	}
	res.enter(StateExtracted, log)
	log.Info("frames extracted", zap.Int("count", res.Frames), zap.String("dir", p.FramesDir))

	if res.Frames == 0 {
		res.Empty = true
		for _, dir := range []string{p.FramesDir, p.EdgesDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return res, fmt.Errorf("create %s: %w", dir, err)
			}
		}
		res.enter(StateEmpty, log)
		log.Info("no frames extracted, writing empty archives")
	} else {
		err = r.stage(ctx, "transform", func(context.Context) error {
			n, err := edges.Transform(r.detector, p.FramesDir, p.EdgesDir)
			res.EdgesProcessed = n
			r.metrics.EdgesProcessed.Add(float64(n))
			return err
		})
		if err != nil {
			log.Error("edge detection failed", zap.Error(err))
			return res, err
		}
		if skipped := res.Frames - res.EdgesProcessed; skipped > 0 {
			r.metrics.FramesSkipped.Add(float64(skipped))
			log.Warn("some frames could not be decoded for edge detection",
				zap.Int("skipped", skipped),
				zap.Int("frames", res.Frames),
			)
		}
		res.enter(StateTransformed, log)
	}

	err = r.stage(ctx, "archive", func(context.Context) error {
		if err := archive.Dir(p.FramesDir, p.FramesArchive); err != nil {
			return fmt.Errorf("archive frames: %w", err)
		}
		if err := archive.Dir(p.EdgesDir, p.EdgesArchive); err != nil {
			return fmt.Errorf("archive edges: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error("archive creation failed", zap.Error(err))
		return res, err
	}
	res.enter(StateArchived, log)
	log.Info("archives created",
		zap.String("frames_archive", p.FramesArchive),
		zap.String("edges_archive", p.EdgesArchive),
	)
	logArchiveEntries(log, p.FramesArchive, p.EdgesArchive)

	if r.publisher != nil {
		err = r.stage(ctx, "publish", func(ctx context.Context) error {
			for _, local := range []string{p.FramesArchive, p.EdgesArchive} {
				key, err := r.publisher.UploadFile(ctx, local)
				if err != nil {
					return err
				}
				res.Published = append(res.Published, key)
			}
			return nil
		})
		if err != nil {
			log.Error("publish failed", zap.Error(err))
			return res, fmt.Errorf("publish archives: %w", err)
		}
		log.Info("archives published", zap.Strings("keys", res.Published))
	}

	return res, nil
}

func (r *Runner) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := r.tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	r.metrics.ObserveStage(name, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Runner) logVideoInfo(inputVideo string, log *zap.Logger) {
	prober, ok := r.decoder.(Prober)
	if !ok || !log.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	info, err := prober.Probe(inputVideo)
	if err != nil {
		log.Debug("read video info", zap.Error(err))
		return
	}
	log.Debug("video info",
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.String("codec", info.Codec),
		zap.Int("nominal_frames", info.Frames),
		zap.Float64("duration_seconds", info.Duration),
	)
}

func logArchiveEntries(log *zap.Logger, archives ...string) {
	if !log.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	for _, a := range archives {
		names, err := archive.Entries(a)
		if err != nil {
			log.Debug("list archive entries", zap.String("archive", a), zap.Error(err))
			continue
		}
		log.Debug("archive entries", zap.String("archive", a), zap.Strings("entries", names))
	}
}

// removeStale deletes leftovers of an earlier run. Failures are logged only.
func (r *Runner) removeStale(p paths.Paths, log *zap.Logger) {
	r.removeTemp(p, log)
	for _, f := range []string{p.FramesArchive, p.EdgesArchive} {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Debug("remove stale archive", zap.String("path", f), zap.Error(err))
		}
	}
}

func (r *Runner) removeTemp(p paths.Paths, log *zap.Logger) {
	for _, dir := range []string{p.FramesDir, p.EdgesDir} {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("remove temp dir", zap.String("path", dir), zap.Error(err))
		}
	}
}

func (res *Result) enter(s State, log *zap.Logger) {
	res.States = append(res.States, s)
	log.Debug("state", zap.String("state", string(s)))
}
