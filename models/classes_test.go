package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassNames(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected ClassNameTable
	}{
		{"yaml list", "- dog\n- pothole\n", ClassNameTable{"dog", "pothole"}},
		{"json list", `["dogs", "road damage"]`, ClassNameTable{"dogs", "road damage"}},
		{"index map", "1: pothole\n0: dog\n", ClassNameTable{"dog", "pothole"}},
		{"metadata literal", "{0: 'dog', 1: 'stray dog', 2: 'pothole'}", ClassNameTable{"dog", "stray dog", "pothole"}},
		{"dataset file", "path: ../data\nnc: 2\nnames:\n  0: dog\n  1: pothole\n", ClassNameTable{"dog", "pothole"}},
		{"dataset list", "names: [dog, pothole]\n", ClassNameTable{"dog", "pothole"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ParseClassNames([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, table)
		})
	}
}

func TestParseClassNames_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"scalar", "dog"},
		{"sparse map", "0: dog\n2: pothole\n"},
		{"empty list", "[]"},
		{"no names", "path: ../data\ntrain: images\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClassNames([]byte(tt.data))
			assert.True(t, errors.Is(err, ErrInvalidClasses), "got %v", err)
		})
	}
}

func TestLoadClassNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- dog\n"), 0o600))

	table, err := LoadClassNames(path)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())

	_, err = LoadClassNames(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestClassNameTable_Name(t *testing.T) {
	table := ClassNameTable{"dog", "pothole"}

	assert.Equal(t, "pothole", table.Name(1))
	assert.Equal(t, "", table.Name(2))
	assert.Equal(t, "", table.Name(-1))
	assert.Equal(t, 80, COCOClasses.Len())
	assert.Equal(t, "dog", COCOClasses.Name(16))
}

func TestNewLayout(t *testing.T) {
	l, err := NewLayout(640, 80)
	require.NoError(t, err)
	assert.Equal(t, 8400, l.Anchors)
	assert.Equal(t, []int64{1, 3, 640, 640}, l.InputShape())
	assert.Equal(t, []int64{1, 84, 8400}, l.OutputShape())
	assert.Equal(t, 84*8400, l.OutputLen())

	l, err = NewLayout(320, 2)
	require.NoError(t, err)
	assert.Equal(t, 2100, l.Anchors)

	_, err = NewLayout(650, 2)
	assert.Error(t, err)
	_, err = NewLayout(640, 0)
	assert.Error(t, err)
}
