package inference

import (
	"fmt"
	"os"
	"sync"

	"github.com/nvr-ai/predict/inference/providers"
	"github.com/nvr-ai/predict/models"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeMu    sync.Mutex
	runtimeUsers int
)

// acquireRuntime loads the ONNX Runtime shared library and initializes the
// environment on first use. Every successful call must be paired with
// releaseRuntime.
func acquireRuntime(libPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeUsers == 0 && !ort.IsInitialized() {
		if libPath == "" {
			p, err := providers.DefaultSharedLibPath()
			if err != nil {
				return err
			}
			libPath = p
		}
		// Check if the shared library exists before trying to use it.
		if _, err := os.Stat(libPath); err != nil {
			return fmt.Errorf("ONNX Runtime library not found at %s: %w", libPath, err)
		}

		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("error initializing ORT environment: %w", err)
		}
	}

	runtimeUsers++
	return nil
}

func releaseRuntime() {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	runtimeUsers--
	if runtimeUsers == 0 && ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// Session represents a model session from the onnxruntime with its
// preallocated input and output tensors.
type Session struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
}

// NewSession creates a session for a YOLO model with a single "images" input
// and a single "output0" output.
//
// Arguments:
//   - modelPath: Path to the ONNX model file.
//   - layout: The tensor layout.
//   - config: The execution provider configuration.
//
// Returns:
//   - *Session: The session; Close it when done.
//   - error: An error if the session creation fails.
func NewSession(modelPath string, layout models.Layout, config providers.Config) (*Session, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(layout.InputShape()...))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(layout.OutputShape()...))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	options, err := providers.SessionOptions(config)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.Value{input},
		[]ort.Value{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}

	return &Session{
		Session: session,
		Input:   input,
		Output:  output,
	}, nil
}

// Run executes the model on the current contents of Input.
func (s *Session) Run() error {
	return s.Session.Run()
}

// Close releases the resources associated with the Session.
func (s *Session) Close() {
	if s.Input != nil {
		s.Input.Destroy()
		s.Input = nil
	}
	if s.Output != nil {
		s.Output.Destroy()
		s.Output = nil
	}
	if s.Session != nil {
		s.Session.Destroy()
		s.Session = nil
	}
}

// ModelClassNames reads the class names that YOLO exports embed in the model
// metadata under "names". The runtime must already be initialized.
func ModelClassNames(modelPath string) (models.ClassNameTable, error) {
	meta, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		return nil, fmt.Errorf("reading model metadata: %w", err)
	}
	defer meta.Destroy()

	raw, ok, err := meta.LookupCustomMetadataMap("names")
	if err != nil {
		return nil, fmt.Errorf("reading model metadata: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("model %s has no \"names\" metadata; configure a classes file", modelPath)
	}
	return models.ParseClassNames([]byte(raw))
}
