package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"os"

	"github.com/nvr-ai/predict/detection"
	"github.com/nvr-ai/predict/images"
	"github.com/nvr-ai/predict/util"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newDetectCommand(opts *options) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "detect <image|directory>",
		Short: "Run the pipeline on local images and print the JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			return runDetect(cmd.Context(), a.predictor, args[0], out, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the annotated JPEG of a single image to this file")
	return cmd
}

type predictor interface {
	Predict(ctx context.Context, payload []byte) (*detection.Result, error)
}

// runDetect predicts path, or every image in path when it is a directory.
// A single image prints its result; a directory prints an object keyed by file.
func runDetect(ctx context.Context, p predictor, path, out string, w io.Writer) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", path)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if !info.IsDir() {
		file, err := util.LoadImageFile(path)
		if err != nil {
			return err
		}
		if file.Format == images.FormatUnknown {
			return errors.Errorf("%s is not a JPEG, PNG, GIF or WebP image", path)
		}
		result, err := p.Predict(ctx, file.Data)
		if err != nil {
			return errors.Wrapf(err, "%s", path)
		}
		if out != "" {
			if err := writeAnnotated(out, result.AnnotatedImage); err != nil {
				return err
			}
		}
		return enc.Encode(result)
	}

	if out != "" {
		return errors.New("--out needs a single image, not a directory")
	}

	files, err := util.LoadDirectoryImageFiles(path)
	if err != nil {
		return err
	}
	results := make(map[string]*detection.Result, len(files))
	for _, file := range files {
		if file.Format == images.FormatUnknown {
			return errors.Errorf("%s is not a JPEG, PNG, GIF or WebP image", file.Path)
		}
		result, err := p.Predict(ctx, file.Data)
		if err != nil {
			return errors.Wrapf(err, "%s", file.Path)
		}
		results[file.Path] = result
	}
	return enc.Encode(results)
}

func writeAnnotated(path, encoded string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return errors.Wrap(err, "failed to decode annotated image")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "failed to write %s", path)
}
