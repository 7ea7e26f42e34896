package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/capture"
	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/detections"
)

const (
	DefaultConfigPath      = "config.json"
	DefaultAddr            = ":8080"
	DefaultFrameIntervalMs = 16
	DefaultMessageTTLMs    = 4000
	DefaultJPEGQuality     = 80
)

type ModelConfig struct {
	// Path to the ONNX model. Empty skips the ONNX backend.
	Path          string  `json:"path"`
	RuntimeLibDir string  `json:"runtime_lib_dir"`
	InputSize     int     `json:"input_size"`
	MaxDetections int     `json:"max_detections"`
	Threshold     float64 `json:"threshold"`
	// Labels is a builtin table name or a path to a .names file.
	Labels string `json:"labels"`
}

type Config struct {
	Addr  string `json:"addr"`
	Debug bool   `json:"debug"`

	Model ModelConfig `json:"model"`
	// RemoteDetector is used when the ONNX model cannot be loaded.
	RemoteDetector string               `json:"remote_detector"`
	Camera         capture.CameraConfig `json:"camera"`

	FrameIntervalMs int      `json:"frame_interval_ms"`
	MessageTTLMs    int      `json:"message_ttl_ms"`
	JPEGQuality     int      `json:"jpeg_quality"`
	AllowedOrigins  []string `json:"allowed_origins"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Addr: DefaultAddr,
		Model: ModelConfig{
			RuntimeLibDir: "lib",
			InputSize:     detections.DefaultInputSize,
			MaxDetections: detections.DefaultMaxDetections,
			Threshold:     detections.ConfThreshold,
			Labels:        detections.LabelsCOCO,
		},
		Camera:          capture.DefaultCameraConfig(),
		FrameIntervalMs: DefaultFrameIntervalMs,
		MessageTTLMs:    DefaultMessageTTLMs,
		JPEGQuality:     DefaultJPEGQuality,
		AllowedOrigins:  []string{"*"},
	}
}

// LoadConfigFile overlays the JSON file at path onto the defaults. A missing
// file is not an error.
func LoadConfigFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "open config file")
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "decode config file %s", path)
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

func (c *Config) MessageTTL() time.Duration {
	return time.Duration(c.MessageTTLMs) * time.Millisecond
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("addr must not be empty"))
	}
	if c.Model.InputSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("model input size must be positive, got %d", c.Model.InputSize))
	}
	if c.Model.MaxDetections <= 0 {
		err = multierr.Append(err, fmt.Errorf("max detections must be positive, got %d", c.Model.MaxDetections))
	}
	if c.Model.Threshold < 0 || c.Model.Threshold >= 1 {
		err = multierr.Append(err, fmt.Errorf("threshold must be in [0, 1), got %v", c.Model.Threshold))
	}
	if _, labelErr := detections.LoadLabels(c.Model.Labels); labelErr != nil {
		err = multierr.Append(err, errors.Wrapf(labelErr, "labels %q", c.Model.Labels))
	}
	if c.FrameIntervalMs <= 0 {
		err = multierr.Append(err, fmt.Errorf("frame interval must be positive, got %dms", c.FrameIntervalMs))
	}
	if c.MessageTTLMs <= 0 {
		err = multierr.Append(err, fmt.Errorf("message ttl must be positive, got %dms", c.MessageTTLMs))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		err = multierr.Append(err, fmt.Errorf("jpeg quality must be in [1, 100], got %d", c.JPEGQuality))
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		err = multierr.Append(err, fmt.Errorf("camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height))
	}
	return err
}
