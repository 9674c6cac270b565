package util

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/predict/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestLoadImageFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.png")
	writePNG(t, path)

	img, err := LoadImageFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, img.Path)
	assert.Equal(t, images.FormatPNG, img.Format)
	assert.NotEmpty(t, img.Data)
}

func TestLoadImageFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadImageFile(filepath.Join(dir, "missing.jpg"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.jpg")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = LoadImageFile(empty)
	assert.Error(t, err)
}

func TestLoadDirectoryImageFiles(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"))
	writePNG(t, filepath.Join(dir, "a.png"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	files, err := LoadDirectoryImageFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.png", filepath.Base(files[0].Path))
	assert.Equal(t, "b.png", filepath.Base(files[1].Path))
}
