// Package config defines the settings of a counting run and how they are read and checked.
package config

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"go.viam.com/peoplecount/rimage"
	"go.viam.com/peoplecount/source"
	"go.viam.com/peoplecount/vision/objectdetection"
)

// Defaults for a run.
const (
	DefaultTargetFPS          = 15
	DefaultReadErrorTolerance = 3
	DefaultListenAddress      = "localhost:8080"
	DefaultPreviewWidth       = 960
)

// SupportedVideoExtensions are the file types accepted in file mode.
var SupportedVideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv"}

// Config describes one counting run and the process around it.
type Config struct {
	Source             source.Config `json:"source"`
	Detector           Detector      `json:"detector"`
	Model              Model         `json:"model"`
	Annotation         Annotation    `json:"annotation"`
	TargetFPS          float64       `json:"target_fps"`
	ReadErrorTolerance int           `json:"read_error_tolerance"`
	Log                Log           `json:"log"`
	Web                Web           `json:"web"`
}

// Detector selects the class to count and how detections are filtered.
type Detector struct {
	TargetClassID       int     `json:"target_class_id"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	IOUThreshold        float64 `json:"iou_threshold"`
	MinArea             int     `json:"min_area"`
	// InferenceTimeoutMs bounds one inference call; 0 means no bound.
	InferenceTimeoutMs int `json:"inference_timeout_ms"`
}

// Model locates the network weights and its runtime.
type Model struct {
	Path        string `json:"path"`
	LibraryPath string `json:"onnxruntime_library,omitempty"`
	LabelsPath  string `json:"labels_path,omitempty"`
	InputSize   int    `json:"input_size,omitempty"`
	NumClasses  int    `json:"num_classes,omitempty"`
}

// Annotation controls how boxes are drawn.
type Annotation struct {
	BoxColor  string  `json:"box_color"`
	LineWidth float64 `json:"line_width"`
	FontSize  float64 `json:"font_size"`
}

// Log configures process logging.
type Log struct {
	Level string `json:"level"`
	// File additionally writes logs into a size rotated file.
	File      string `json:"file,omitempty"`
	MaxSizeMB int    `json:"max_size_mb,omitempty"`
}

// Web configures the HTTP presentation server.
type Web struct {
	Listen       string `json:"listen"`
	PreviewWidth uint   `json:"preview_width"`
}

// Default returns a config with every default applied: camera 0 through OpenCV, people at 0.5
// confidence, 15 frames per second.
func Default() Config {
	return Config{
		Source: source.Config{
			Mode:    source.ModeCamera,
			Backend: source.DefaultBackend,
		},
		Detector: Detector{
			TargetClassID:       objectdetection.PersonClassID,
			ConfidenceThreshold: objectdetection.DefaultConfidenceThreshold,
			IOUThreshold:        0.45,
		},
		Annotation: Annotation{
			BoxColor:  "#00ff00",
			LineWidth: 2,
			FontSize:  14,
		},
		TargetFPS:          DefaultTargetFPS,
		ReadErrorTolerance: DefaultReadErrorTolerance,
		Log:                Log{Level: "info", MaxSizeMB: 100},
		Web:                Web{Listen: DefaultListenAddress, PreviewWidth: DefaultPreviewWidth},
	}
}

// ConfigurationError reports an invalid setting. No resources are acquired for a run whose
// config fails validation.
type ConfigurationError struct {
	Field  string
	Reason string
}

// NewConfigurationError creates a ConfigurationError for `field`.
func NewConfigurationError(field, reason string) error {
	return &ConfigurationError{Field: field, Reason: reason}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %q %s", e.Field, e.Reason)
}

// Validate checks the settings a run depends on.
func (c *Config) Validate() error {
	switch c.Source.Mode {
	case source.ModeCamera:
		if c.Source.CameraIndex < 0 {
			return NewConfigurationError("source.camera_index", "must not be negative")
		}
	case source.ModeFile:
		if c.Source.FilePath == "" {
			return NewConfigurationError("source.file_path", "is required in file mode")
		}
		if !IsSupportedVideo(c.Source.FilePath) {
			return NewConfigurationError("source.file_path",
				fmt.Sprintf("must be a video file (%s)", strings.Join(SupportedVideoExtensions, ", ")))
		}
	default:
		return NewConfigurationError("source.input_mode", fmt.Sprintf("must be %q or %q, got %q",
			source.ModeCamera, source.ModeFile, c.Source.Mode))
	}

	if c.Detector.TargetClassID < 0 {
		return NewConfigurationError("detector.target_class_id", "must not be negative")
	}
	if !inUnitRange(c.Detector.ConfidenceThreshold) {
		return NewConfigurationError("detector.confidence_threshold", "must be between 0 and 1")
	}
	if !inUnitRange(c.Detector.IOUThreshold) {
		return NewConfigurationError("detector.iou_threshold", "must be between 0 and 1")
	}
	if c.Detector.MinArea < 0 {
		return NewConfigurationError("detector.min_area", "must not be negative")
	}
	if c.Detector.InferenceTimeoutMs < 0 {
		return NewConfigurationError("detector.inference_timeout_ms", "must not be negative")
	}
	if c.TargetFPS <= 0 || math.IsNaN(c.TargetFPS) || math.IsInf(c.TargetFPS, 0) {
		return NewConfigurationError("target_fps", "must be greater than 0")
	}
	if c.ReadErrorTolerance < 0 {
		return NewConfigurationError("read_error_tolerance", "must not be negative")
	}
	if c.Annotation.BoxColor != "" {
		if _, err := rimage.ParseHexColor(c.Annotation.BoxColor); err != nil {
			return NewConfigurationError("annotation.box_color", err.Error())
		}
	}
	return nil
}

// IsSupportedVideo reports whether the path has one of the accepted video extensions.
func IsSupportedVideo(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range SupportedVideoExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

// DetectorConfig converts the detector settings for objectdetection.NewDetector.
func (c *Config) DetectorConfig() objectdetection.Config {
	return objectdetection.Config{
		ClassID:             c.Detector.TargetClassID,
		ConfidenceThreshold: c.Detector.ConfidenceThreshold,
		IOUThreshold:        c.Detector.IOUThreshold,
		MinArea:             c.Detector.MinArea,
		Timeout:             time.Duration(c.Detector.InferenceTimeoutMs) * time.Millisecond,
	}
}

// AnnotatorConfig converts the annotation settings. The box color must already be valid.
func (c *Config) AnnotatorConfig() objectdetection.AnnotatorConfig {
	cfg := objectdetection.AnnotatorConfig{
		LineWidth: c.Annotation.LineWidth,
		FontSize:  c.Annotation.FontSize,
	}
	if boxColor, err := rimage.ParseHexColor(c.Annotation.BoxColor); err == nil {
		cfg.BoxColor = boxColor
	}
	return cfg
}
