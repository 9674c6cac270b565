package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// options are the flags shared by every subcommand.
type options struct {
	v          *viper.Viper
	configFile string
}

func newRootCommand() *cobra.Command {
	return buildRootCommand(&options{v: viper.New()})
}

func buildRootCommand(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "predict",
		Short:         "Image detection prediction service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (default ./predict.yaml or $HOME/.config/predict/predict.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("listen", "", "public listen address")
	flags.String("model", "", "path to the .onnx model")
	flags.String("labels", "", "path to the label map")

	for key, flag := range map[string]string{
		"debug":         "debug",
		"server.listen": "listen",
		"model.path":    "model",
		"labels.path":   "labels",
	} {
		// Only errors on a nil flag.
		_ = opts.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(newServeCommand(opts), newDetectCommand(opts))
	return root
}
