package providers

import (
	"fmt"
	"runtime"
)

// SharedLibPath returns the default ONNX Runtime shared library location for
// the platform, relative to the working directory.
//
// Returns:
//   - string: The path to the shared library.
//   - error: If the platform has no known build.
func SharedLibPath(goos, goarch string) (string, error) {
	switch goos {
	case "windows":
		if goarch == "amd64" {
			return "third_party/onnxruntime.dll", nil
		}
	case "darwin":
		if goarch == "arm64" || goarch == "amd64" {
			return "third_party/libonnxruntime.dylib", nil
		}
	case "linux":
		if goarch == "arm64" {
			return "third_party/onnxruntime_arm64.so", nil
		}
		if goarch == "amd64" {
			return "third_party/onnxruntime.so", nil
		}
	}
	return "", fmt.Errorf("no onnxruntime library known for %s/%s", goos, goarch)
}

// DefaultSharedLibPath is SharedLibPath for the running platform.
func DefaultSharedLibPath() (string, error) {
	return SharedLibPath(runtime.GOOS, runtime.GOARCH)
}
