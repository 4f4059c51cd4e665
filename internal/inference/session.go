// Package inference owns the process-wide ONNX Runtime environment and the
// sessions the detector, encoder, swapper, enhancer and content filter run on.
package inference

import (
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/facemap/internal/logger"
)

// Options configures the runtime environment
type Options struct {
	// Library is the onnxruntime shared library. Empty picks a per-OS default.
	Library string
	// CoreML appends the CoreML execution provider to every session
	CoreML bool
}

// DefaultLibrary is the shared library looked up when Options.Library is empty
func DefaultLibrary() string {
	switch runtime.GOOS {
	case "darwin":
		return "lib/libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	}
	return "libonnxruntime.so"
}

var (
	initialized bool
	useCoreML   bool
	initMu      sync.Mutex
)

// Initialize sets up the ONNX Runtime environment. Later calls are no-ops
// until Shutdown.
func Initialize(opts Options) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	lib := opts.Library
	if lib == "" {
		lib = DefaultLibrary()
	}
	ort.SetSharedLibraryPath(lib)

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime from %s: %w", lib, err)
	}

	useCoreML = opts.CoreML
	initialized = true
	return nil
}

// Shutdown destroys the environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}
	initialized = false
	return nil
}

func ready() (bool, bool) {
	initMu.Lock()
	defer initMu.Unlock()
	return initialized, useCoreML
}

// Session wraps an ONNX Runtime session with fixed input and output names
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	inputNames  []string
	outputNames []string
}

// NewSession loads modelPath
func NewSession(modelPath string, inputNames, outputNames []string) (*Session, error) {
	ok, coreml := ready()
	if !ok {
		return nil, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	provider := "CPU"
	if coreml {
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			logger.Warn("Inference", "%s: CoreML unavailable, using CPU: %v", modelPath, err)
		} else {
			provider = "CoreML"
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelPath, err)
	}
	logger.Debug("Inference", "[%s] %s", provider, modelPath)

	return &Session{
		session:     session,
		modelPath:   modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Run executes inference with the given inputs
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	if err := s.session.Run(inputs, outputs); err != nil {
		return fmt.Errorf("%s: %w", s.modelPath, err)
	}
	return nil
}

// Destroy releases session resources
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// CreateTensor creates a tensor with the given shape over data
func CreateTensor[T ort.TensorData](shape []int64, data []T) (*ort.Tensor[T], error) {
	return ort.NewTensor(ort.NewShape(shape...), data)
}

// CreateEmptyTensor creates a zeroed tensor for output
func CreateEmptyTensor[T ort.TensorData](shape []int64) (*ort.Tensor[T], error) {
	return ort.NewEmptyTensor[T](ort.NewShape(shape...))
}
