package inference

import (
	"fmt"
	"os"

	"github.com/tsawler/go-metal/checkpoints"
	ort "github.com/yalue/onnxruntime_go"
)

// TensorInfo describes one model input or output
type TensorInfo struct {
	Name  string
	Shape []int64
	Type  string
}

// ModelInfo is what `facemap models` prints for each model file
type ModelInfo struct {
	Path     string
	Inputs   []TensorInfo
	Outputs  []TensorInfo
	Producer string
	Version  int64
}

// Describe reads the input/output signature and metadata of an ONNX model.
// The environment must be initialized.
func Describe(modelPath string) (ModelInfo, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return ModelInfo{}, fmt.Errorf("model not found: %w", err)
	}
	if ok, _ := ready(); !ok {
		return ModelInfo{}, fmt.Errorf("ONNX Runtime not initialized, call Initialize() first")
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to get model info for %s: %w", modelPath, err)
	}

	info := ModelInfo{Path: modelPath}
	for _, in := range inputs {
		info.Inputs = append(info.Inputs, tensorInfo(in))
	}
	for _, out := range outputs {
		info.Outputs = append(info.Outputs, tensorInfo(out))
	}

	// Metadata is optional in exported models
	if md, err := ort.GetModelMetadata(modelPath); err == nil {
		info.Producer, _ = md.GetProducerName()
		info.Version, _ = md.GetVersion()
		md.Destroy()
	}
	return info, nil
}

func tensorInfo(io ort.InputOutputInfo) TensorInfo {
	return TensorInfo{
		Name:  io.Name,
		Shape: append([]int64(nil), io.Dimensions...),
		Type:  fmt.Sprint(io.DataType),
	}
}

// NativeLayer is one layer recovered by the native importer
type NativeLayer struct {
	Name string
	Type string
}

// NativeInfo summarises a model imported without ONNX Runtime
type NativeInfo struct {
	Layers  []NativeLayer
	Weights int
}

// ImportNative checks whether go-metal can import the model directly. Most
// face models use operators it lacks, so failure is expected and reported
// rather than fatal.
func ImportNative(modelPath string) (NativeInfo, error) {
	cp, err := checkpoints.NewONNXImporter().ImportFromONNX(modelPath)
	if err != nil {
		return NativeInfo{}, fmt.Errorf("failed to import %s natively: %w", modelPath, err)
	}
	info := NativeInfo{Weights: len(cp.Weights)}
	for _, l := range cp.ModelSpec.Layers {
		info.Layers = append(info.Layers, NativeLayer{Name: l.Name, Type: fmt.Sprint(l.Type)})
	}
	return info, nil
}
