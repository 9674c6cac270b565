// Package providers - ONNX Runtime execution provider selection and session options.
package providers

import (
	"fmt"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers
type ProviderBackend string

const (
	// CPUProviderBackend uses the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
	// CUDAProviderBackend uses NVIDIA CUDA for inference optimization.
	CUDAProviderBackend ProviderBackend = "cuda"
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
	// OpenVINOProviderBackend uses Intel OpenVINO for inference optimization.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// Backends lists every supported backend.
var Backends = []ProviderBackend{
	CPUProviderBackend,
	CUDAProviderBackend,
	CoreMLProviderBackend,
	OpenVINOProviderBackend,
}

// ParseBackend resolves a case-insensitive backend name.
func ParseBackend(name string) (ProviderBackend, error) {
	b := ProviderBackend(strings.ToLower(strings.TrimSpace(name)))
	if b == "" {
		return CPUProviderBackend, nil
	}
	for _, known := range Backends {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("unsupported execution provider %q", name)
}

// Config selects an execution provider and threading for a session.
type Config struct {
	// Backend is the execution provider.
	Backend ProviderBackend `json:"backend" yaml:"backend"`
	// IntraOpNumThreads sets threads for parallelizing ops; 0 lets ORT decide.
	IntraOpNumThreads int `json:"intra_op_num_threads" yaml:"intra_op_num_threads"`
	// InterOpNumThreads sets threads for parallelizing independent ops; 0 lets ORT decide.
	InterOpNumThreads int `json:"inter_op_num_threads" yaml:"inter_op_num_threads"`
	// CUDA options, used when Backend is cuda.
	CUDA CUDAOptions `json:"cuda" yaml:"cuda"`
	// CoreMLFlags are the COREML_FLAG_* bits, used when Backend is coreml.
	CoreMLFlags uint32 `json:"coreml_flags" yaml:"coreml_flags"`
	// OpenVINO options, used when Backend is openvino.
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// DefaultConfig returns a CPU configuration.
func DefaultConfig() Config {
	return Config{
		Backend:  CPUProviderBackend,
		OpenVINO: DefaultOpenVINOOptions(),
	}
}

// SessionOptions builds ONNX Runtime session options for config. The caller
// owns the result and must Destroy it once the session has been created.
//
// Arguments:
//   - config: The provider configuration.
//
// Returns:
//   - *ort.SessionOptions: Configured session options.
//   - error: If the options or provider could not be applied.
func SessionOptions(config Config) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}

	if err := applyOptions(options, config); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

func applyOptions(options *ort.SessionOptions, config Config) error {
	if err := options.SetIntraOpNumThreads(config.IntraOpNumThreads); err != nil {
		return fmt.Errorf("setting intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(config.InterOpNumThreads); err != nil {
		return fmt.Errorf("setting inter-op threads: %w", err)
	}
	// Enables graph rewrites (fusion, constant folding) during graph loading.
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return fmt.Errorf("setting graph optimization level: %w", err)
	}

	switch config.Backend {
	case CPUProviderBackend, "":
		// CPU provider is always available, no explicit configuration needed
	case CoreMLProviderBackend:
		if err := options.AppendExecutionProviderCoreML(config.CoreMLFlags); err != nil {
			return fmt.Errorf("error enabling CoreML: %w", err)
		}
	case OpenVINOProviderBackend:
		if err := options.AppendExecutionProviderOpenVINO(config.OpenVINO.ToMap()); err != nil {
			return fmt.Errorf("error enabling OpenVINO: %w", err)
		}
	case CUDAProviderBackend:
		cuda, err := config.CUDA.ToNativeProviderOptions()
		if err != nil {
			return fmt.Errorf("error converting CUDA options: %w", err)
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return fmt.Errorf("error enabling CUDA: %w", err)
		}
	default:
		return fmt.Errorf("unsupported execution provider: %s", config.Backend)
	}

	return nil
}
