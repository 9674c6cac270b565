// Package util - Image file loading for the command line.
package util

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/nvr-ai/predict/images"
	"github.com/pkg/errors"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Format is the format sniffed from Data.
	Format images.ImageFormat
}

// LoadImageFile reads one image file.
//
// Arguments:
// - path: Path to the image file.
//
// Returns:
// - ImageFile: The raw bytes and sniffed format of the file.
// - error: If the file cannot be read or is empty.
func LoadImageFile(path string) (ImageFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImageFile{}, errors.Wrapf(err, "failed to read %s", path)
	}
	if len(data) == 0 {
		return ImageFile{}, errors.Errorf("%s is empty", path)
	}
	return ImageFile{
		Path:   path,
		Data:   data,
		Format: images.SniffFormat(data),
	}, nil
}

// LoadDirectoryImageFiles reads all image files from a directory.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: The image files sorted by name. Subdirectories and files
// whose extension is not a supported image format are skipped.
// - error: Error if loading fails.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read directory %s", dir)
	}

	var out []ImageFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		switch filepath.Ext(file.Name()) {
		case ".jpg", ".jpeg", ".png", ".gif", ".webp":
			img, err := LoadImageFile(filepath.Join(dir, file.Name()))
			if err != nil {
				return nil, err
			}
			out = append(out, img)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})

	return out, nil
}
