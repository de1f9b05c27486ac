package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"videoedges/internal/config"
	"videoedges/internal/edges"
	"videoedges/internal/extract"
	"videoedges/internal/logger"
	"videoedges/internal/metrics"
	"videoedges/internal/pipeline"
	"videoedges/internal/publish"
	"videoedges/internal/tracing"
)

const usageLine = "Usage: videoedges input_video.mp4 [output_dir]"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	code := run(context.Background(), os.Args, app{
		cfg:     cfg,
		log:     log,
		stdout:  os.Stdout,
		decoder: extract.NewFFmpegDecoder(cfg.FFmpegBin, cfg.FFprobeBin, cfg.ProbeTimeout),
	})
	_ = log.Sync()
	os.Exit(code)
}

type app struct {
	cfg     *config.Config
	log     *zap.Logger
	stdout  io.Writer
	decoder extract.Decoder
}

// run executes the command and maps its outcome to a process exit code.
func run(ctx context.Context, args []string, a app) int {
	cmd := &cli.Command{
		Name:            "videoedges",
		Usage:           "Extract every frame of a video and its Canny edge map into two zip archives",
		ArgsUsage:       "<input_video_path> [output_dir]",
		Writer:          a.stdout,
		HideHelpCommand: true,
		SkipFlagParsing: true,
		ExitErrHandler:  func(context.Context, *cli.Command, error) {},
		Action:          a.action,
	}

	err := cmd.Run(ctx, args)
	if err == nil {
		return 0
	}

	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	a.log.Error("run failed", zap.Error(err))
	return 1
}

func (a app) action(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() < 1 || cmd.NArg() > 2 {
		fmt.Fprintln(a.stdout, usageLine)
		return cli.Exit("", 1)
	}
	input := cmd.Args().Get(0)
	outputDir := cmd.Args().Get(1)

	if a.cfg.TracesEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, a.cfg.TracesEndpoint)
		if err != nil {
			a.log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
		} else {
			defer tp.Shutdown(context.WithoutCancel(ctx))
		}
	}

	rec := metrics.New()
	if a.cfg.MetricsTextfile != "" {
		defer func() {
			if err := rec.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
				a.log.Warn("write metrics textfile", zap.String("path", a.cfg.MetricsTextfile), zap.Error(err))
			}
		}()
	}

	runner := pipeline.NewRunner(a.decoder, edges.NewDetector(), rec, a.log)
	if a.cfg.Publish.Enabled() {
		storage, err := publish.NewStorage(publish.StorageConfig{
			Endpoint:  a.cfg.Publish.Endpoint,
			AccessKey: a.cfg.Publish.AccessKey,
			SecretKey: a.cfg.Publish.SecretKey,
			UseSSL:    a.cfg.Publish.UseSSL,
			Bucket:    a.cfg.Publish.Bucket,
			Prefix:    a.cfg.Publish.Prefix,
		})
		if err != nil {
			return err
		}
		runner.WithPublisher(storage)
	}

	res, err := runner.Run(ctx, input, outputDir)
	if errors.Is(err, pipeline.ErrInputNotFound) {
		fmt.Fprintln(a.stdout, "Error: input video file does not exist")
		return cli.Exit("", 1)
	}
	if err != nil {
		return err
	}

	if res.Empty {
		fmt.Fprintln(a.stdout, "No frames extracted from the video.")
		return nil
	}

	fmt.Fprintf(a.stdout, "Done. Frames: %d\n", res.Frames)
	fmt.Fprintf(a.stdout, "Created: %s\n", res.FramesArchive)
	fmt.Fprintf(a.stdout, "Created: %s\n", res.EdgesArchive)
	for _, key := range res.Published {
		fmt.Fprintf(a.stdout, "Published: %s\n", key)
	}
	return nil
}
