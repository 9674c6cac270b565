package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/predict/config"
	"github.com/nvr-ai/predict/detection"
	"github.com/nvr-ai/predict/inference"
	"github.com/nvr-ai/predict/labels"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPredictor struct {
	calls int
}

func (p *countingPredictor) Predict(_ context.Context, payload []byte) (*detection.Result, error) {
	p.calls++
	top := "dog"
	return &detection.Result{
		AnnotatedImage: base64.StdEncoding.EncodeToString(payload),
		Predictions:    []detection.Detection{{Class: "dog", Score: 0.9}},
		TopClass:       &top,
	}, nil
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestRunDetect_SingleFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "street.jpg")
	out := filepath.Join(dir, "annotated.jpg")
	writeFile(t, in, []byte{0xff, 0xd8, 0xff, 0x00})

	var buf bytes.Buffer
	p := &countingPredictor{}
	require.NoError(t, runDetect(context.Background(), p, in, out, &buf))

	var result detection.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, "dog", *result.TopClass)

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0x00}, written)
}

func TestRunDetect_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.jpg"), []byte{0xff, 0xd8, 0xff})
	writeFile(t, filepath.Join(dir, "b.png"), []byte("\x89PNG\r\n\x1a\n"))
	writeFile(t, filepath.Join(dir, "readme.md"), []byte("skip"))

	var buf bytes.Buffer
	p := &countingPredictor{}
	require.NoError(t, runDetect(context.Background(), p, dir, "", &buf))
	assert.Equal(t, 2, p.calls)

	var results map[string]detection.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &results))
	assert.Len(t, results, 2)
	assert.Contains(t, results, filepath.Join(dir, "a.jpg"))

	err := runDetect(context.Background(), p, dir, filepath.Join(dir, "out.jpg"), &buf)
	assert.Error(t, err)
}

func TestRunDetect_UnknownFormat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.jpg"), []byte("plain text"))

	p := &countingPredictor{}
	err := runDetect(context.Background(), p, filepath.Join(dir, "notes.jpg"), "", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a JPEG")

	err = runDetect(context.Background(), p, dir, "", &bytes.Buffer{})
	assert.Error(t, err)
	assert.Zero(t, p.calls)
}

func TestRunDetect_Missing(t *testing.T) {
	err := runDetect(context.Background(), &countingPredictor{}, filepath.Join(t.TempDir(), "nope.jpg"), "", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRootCommand_FlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)

	opts := &options{v: viper.New()}
	root := buildRootCommand(opts)
	require.NoError(t, root.PersistentFlags().Parse([]string{"--listen", ":9000", "--model", "yolo.onnx", "--debug"}))

	s, err := config.Load(opts.v, opts.configFile)
	require.NoError(t, err)
	assert.Equal(t, ":9000", s.Server.Listen)
	assert.Equal(t, "yolo.onnx", s.Model.Path)
	assert.True(t, s.Debug)
	assert.Equal(t, "image", s.Server.FieldName)
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "detect"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestLoadLabels(t *testing.T) {
	m, err := loadLabels("")
	require.NoError(t, err)
	assert.Equal(t, labels.Default().Len(), m.Len())

	path := filepath.Join(t.TempDir(), "labels.yaml")
	writeFile(t, path, []byte("cat: cat\nkitten: cat\n"))
	m, err = loadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, "cat", m.Normalize("Kitten"))
}

func TestLoadModel_Remote(t *testing.T) {
	classes := filepath.Join(t.TempDir(), "classes.yaml")
	writeFile(t, classes, []byte("- dogs\n- road damage\n"))

	s := &config.Settings{Model: config.ModelSettings{
		Backend:     "remote",
		RemoteURL:   "http://localhost:9000/detect",
		ClassesPath: classes,
	}}
	log, _ := test.NewNullLogger()

	model, err := loadModel(s, log)
	require.NoError(t, err)
	defer model.Close()

	assert.IsType(t, &inference.RemoteDetector{}, model)
	assert.Equal(t, "road damage", model.ClassNames().Name(1))
}

func TestLoadModel_UnknownBackend(t *testing.T) {
	log, _ := test.NewNullLogger()
	model, err := loadModel(&config.Settings{Model: config.ModelSettings{Backend: "tflite"}}, log)
	assert.Error(t, err)
	assert.Nil(t, model)
}
