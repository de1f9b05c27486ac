package publish

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
)

func TestObjectKey(t *testing.T) {
	s, err := NewStorage(StorageConfig{Endpoint: "localhost:9000", Bucket: "b", Prefix: "runs/clip"})
	require.NoError(t, err)
	assert.Equal(t, "runs/clip/clip_edges.zip", s.ObjectKey("/tmp/out/clip_edges.zip"))

	s, err = NewStorage(StorageConfig{Endpoint: "localhost:9000", Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "clip_images.zip", s.ObjectKey("clip_images.zip"))
}

func TestNewStorageBadEndpoint(t *testing.T) {
	_, err := NewStorage(StorageConfig{Endpoint: "http://localhost:9000/with/path"})
	assert.Error(t, err)
}

func TestUploadToMinIO(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	if err != nil {
		t.Skipf("minio container unavailable: %v", err)
	}
	defer container.Terminate(ctx)

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := NewStorage(StorageConfig{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "edges",
		Prefix:    "clip",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBucket(ctx))

	local := filepath.Join(t.TempDir(), "clip_edges.zip")
	require.NoError(t, os.WriteFile(local, []byte("PK\x05\x06"+string(make([]byte, 18))), 0o644))

	key, err := storage.UploadFile(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, "clip/clip_edges.zip", key)

	info, err := storage.client.StatObject(ctx, "edges", key, miniogo.StatObjectOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(22), info.Size)
	assert.Equal(t, "application/zip", info.ContentType)
}
