// Package config holds the settings snapshot that a run reads once at
// start, plus loading of the optional TOML settings and mapping files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// EnvModelsDir overrides Models.Dir when set
const EnvModelsDir = "FACEMAP_MODELS_DIR"

type ModelsConfig struct {
	Dir      string `toml:"dir"`
	Detector string `toml:"detector"`
	Encoder  string `toml:"encoder"`
	Swapper  string `toml:"swapper"`
	Emap     string `toml:"emap"`
	Enhancer string `toml:"enhancer"`
	Safety   string `toml:"safety"`

	// Library is the onnxruntime shared library; empty uses the platform default
	Library string `toml:"library"`
	CoreML  bool   `toml:"coreml"`
}

// Path resolves a model file name against Dir. Absolute names are kept.
func (m ModelsConfig) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(m.Dir, name)
}

type DetectionConfig struct {
	Size          int     `toml:"size"`
	ConfThreshold float32 `toml:"conf_threshold"`
	NMSThreshold  float32 `toml:"nms_threshold"`
}

type CaptureConfig struct {
	CameraIndex int `toml:"camera_index"`
	Width       int `toml:"width"`
	Height      int `toml:"height"`
	FPS         int `toml:"fps"`
}

type PreviewConfig struct {
	MaxWidth  int `toml:"max_width"`
	MaxHeight int `toml:"max_height"`
}

// Settings is the per-run snapshot. Components receive it by value and never
// see later edits.
type Settings struct {
	Mirror          bool `toml:"mirror"`
	Resizable       bool `toml:"resizable"`
	MapFaces        bool `toml:"map_faces"`
	KeepFPS         bool `toml:"keep_fps"`
	KeepAudio       bool `toml:"keep_audio"`
	ColorCorrection bool `toml:"color_correction"`
	ManyFaces       bool `toml:"many_faces"`
	ContentFilter   bool `toml:"content_filter"`
	FaceEnhancer    bool `toml:"face_enhancer"`

	SimilarityThreshold float32 `toml:"similarity_threshold"`
	UniqueThreshold     float32 `toml:"unique_threshold"`
	SafetyThreshold     float32 `toml:"safety_threshold"`
	VideoSampleStep     int     `toml:"video_sample_step"`
	BlurSize            int     `toml:"blur_size"`

	Capture   CaptureConfig   `toml:"capture"`
	Preview   PreviewConfig   `toml:"preview"`
	Detection DetectionConfig `toml:"detection"`
	Models    ModelsConfig    `toml:"models"`
}

// Default returns the settings used when no file is given
func Default() Settings {
	return Settings{
		ColorCorrection:     true,
		ContentFilter:       true,
		SimilarityThreshold: 0.4,
		UniqueThreshold:     0.6,
		SafetyThreshold:     0.85,
		VideoSampleStep:     100,
		BlurSize:            31,
		Capture: CaptureConfig{
			Width:  960,
			Height: 540,
			FPS:    60,
		},
		Preview: PreviewConfig{
			MaxWidth:  1200,
			MaxHeight: 700,
		},
		Detection: DetectionConfig{
			Size:          640,
			ConfThreshold: 0.5,
			NMSThreshold:  0.4,
		},
		Models: ModelsConfig{
			Dir:      "models",
			Detector: "scrfd_10g.onnx",
			Encoder:  "arcface.onnx",
			Swapper:  "inswapper.onnx",
			Emap:     "emap.bin",
			Enhancer: "gfpgan_1.4.onnx",
			Safety:   "open_nsfw.onnx",
		},
	}
}

// Load reads a TOML settings file over the defaults. An empty path returns
// the defaults. Environment overrides are applied last.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := toml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}
	if dir := os.Getenv(EnvModelsDir); dir != "" {
		s.Models.Dir = dir
	}
	return s, nil
}

// LoadEnv loads .env style files into the process environment. Missing
// files are ignored.
func LoadEnv(files ...string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load env file '%s': %w", f, err)
		}
	}
	return nil
}

// Validate reports the first setting that cannot drive a run
func (s Settings) Validate() error {
	switch {
	case s.SimilarityThreshold < -1 || s.SimilarityThreshold > 1:
		return fmt.Errorf("similarity_threshold must be within [-1, 1], got %v", s.SimilarityThreshold)
	case s.UniqueThreshold < -1 || s.UniqueThreshold > 1:
		return fmt.Errorf("unique_threshold must be within [-1, 1], got %v", s.UniqueThreshold)
	case s.SafetyThreshold <= 0 || s.SafetyThreshold >= 1:
		return fmt.Errorf("safety_threshold must be within (0, 1), got %v", s.SafetyThreshold)
	case s.VideoSampleStep < 1:
		return fmt.Errorf("video_sample_step must be positive, got %d", s.VideoSampleStep)
	case s.BlurSize < 1 || s.BlurSize%2 == 0:
		return fmt.Errorf("blur_size must be a positive odd number, got %d", s.BlurSize)
	case s.Capture.CameraIndex < 0:
		return fmt.Errorf("capture.camera_index must not be negative, got %d", s.Capture.CameraIndex)
	case s.Capture.Width <= 0 || s.Capture.Height <= 0:
		return fmt.Errorf("capture size must be positive, got %dx%d", s.Capture.Width, s.Capture.Height)
	case s.Capture.FPS <= 0:
		return fmt.Errorf("capture.fps must be positive, got %d", s.Capture.FPS)
	case s.Preview.MaxWidth < 0 || s.Preview.MaxHeight < 0:
		return fmt.Errorf("preview size must not be negative, got %dx%d", s.Preview.MaxWidth, s.Preview.MaxHeight)
	case s.Detection.Size < 32 || s.Detection.Size%32 != 0:
		return fmt.Errorf("detection.size must be a multiple of 32, got %d", s.Detection.Size)
	case s.Models.Detector == "" || s.Models.Encoder == "" || s.Models.Swapper == "":
		return errors.New("models.detector, models.encoder and models.swapper are required")
	case s.FaceEnhancer && s.Models.Enhancer == "":
		return errors.New("face_enhancer is on but models.enhancer is empty")
	case s.ContentFilter && s.Models.Safety == "":
		return errors.New("content_filter is on but models.safety is empty")
	}
	return nil
}
