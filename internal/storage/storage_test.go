package storage_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/straye-as/pipeline-api/internal/config"
	"github.com/straye-as/pipeline-api/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewLocalStorage(t.TempDir(), "http://files.test/")
	require.NoError(t, err)

	obj, err := s.Upload(ctx, "customers/abc", "Offer.PDF", "application/pdf", bytes.NewBufferString("hello"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.Path, "customers/abc/"))
	assert.True(t, strings.HasSuffix(obj.Path, ".pdf"))
	assert.Equal(t, "http://files.test/"+obj.Path, obj.URL)
	assert.Equal(t, int64(5), obj.Size)

	rc, err := s.Download(ctx, obj.Path)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(body))

	require.NoError(t, s.Delete(ctx, obj.Path))
	require.NoError(t, s.Delete(ctx, obj.Path))

	_, err = s.Download(ctx, obj.Path)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestLocalStorage_PathsStayInsideBase(t *testing.T) {
	s, err := storage.NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)
	_, err = s.Download(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestNewStorage(t *testing.T) {
	logger := zap.NewNop()

	s, err := storage.NewStorage(&config.StorageConfig{Mode: "local", LocalBasePath: t.TempDir()}, logger)
	require.NoError(t, err)
	assert.IsType(t, &storage.LocalStorage{}, s)

	_, err = storage.NewStorage(&config.StorageConfig{Mode: "azure"}, logger)
	assert.Error(t, err)

	_, err = storage.NewStorage(&config.StorageConfig{Mode: "ftp"}, logger)
	assert.Error(t, err)
}
