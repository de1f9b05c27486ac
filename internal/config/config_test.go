package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "ffmpeg", cfg.FFmpegBin)
	assert.Equal(t, "ffprobe", cfg.FFprobeBin)
	assert.Equal(t, 30*time.Second, cfg.ProbeTimeout)
	assert.Empty(t, cfg.MetricsTextfile)
	assert.False(t, cfg.Publish.Enabled())
	assert.Equal(t, "videoedges", cfg.Publish.Bucket)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PROBE_TIMEOUT", "5s")
	t.Setenv("FFMPEG_BIN", "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv("FFPROBE_BIN", "/opt/ffmpeg/bin/ffprobe")
	t.Setenv("METRICS_TEXTFILE", "/var/lib/node_exporter/videoedges.prom")
	t.Setenv("PUBLISH_ENDPOINT", "localhost:9000")
	t.Setenv("PUBLISH_USE_SSL", "true")
	t.Setenv("PUBLISH_BUCKET", "edges")
	t.Setenv("PUBLISH_PREFIX", "runs/2024")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegBin)
	assert.Equal(t, "/opt/ffmpeg/bin/ffprobe", cfg.FFprobeBin)
	assert.Equal(t, "/var/lib/node_exporter/videoedges.prom", cfg.MetricsTextfile)
	assert.True(t, cfg.Publish.Enabled())
	assert.True(t, cfg.Publish.UseSSL)
	assert.Equal(t, "edges", cfg.Publish.Bucket)
	assert.Equal(t, "runs/2024", cfg.Publish.Prefix)
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("PROBE_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
}
