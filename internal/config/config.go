package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment. The two positional arguments are the
// only command-line inputs; everything optional lives here.
type Config struct {
	LogLevel     string        `env:"LOG_LEVEL"     envDefault:"info"`
	FFmpegBin    string        `env:"FFMPEG_BIN"    envDefault:"ffmpeg"`
	FFprobeBin   string        `env:"FFPROBE_BIN"   envDefault:"ffprobe"`
	ProbeTimeout time.Duration `env:"PROBE_TIMEOUT" envDefault:"30s"`

	MetricsTextfile string `env:"METRICS_TEXTFILE"`
	TracesEndpoint  string `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`

	Publish PublishConfig `envPrefix:"PUBLISH_"`
}

// PublishConfig points at an S3-compatible bucket. Publishing is off while
// Endpoint is empty.
type PublishConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	UseSSL    bool   `env:"USE_SSL"    envDefault:"false"`
	Bucket    string `env:"BUCKET"     envDefault:"videoedges"`
	Prefix    string `env:"PREFIX"`
}

func (p PublishConfig) Enabled() bool {
	return p.Endpoint != ""
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
