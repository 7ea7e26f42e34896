package detections

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/models"
)

const runtimeVersion = "1.20.0"

// RuntimeLibraryPath returns the ONNX Runtime shared library inside dir for
// the current OS. A path that already names a library file is returned as is.
func RuntimeLibraryPath(dir string) string {
	base := filepath.Base(dir)
	if strings.Contains(base, "onnxruntime") && (strings.Contains(base, ".so") ||
		strings.HasSuffix(base, ".dylib") || strings.HasSuffix(base, ".dll")) {
		return dir
	}

	libName := "libonnxruntime.so." + runtimeVersion
	if runtime.GOOS == "darwin" {
		libName = "libonnxruntime." + runtimeVersion + ".dylib"
	} else if runtime.GOOS == "windows" {
		libName = "onnxruntime.dll"
	}
	return filepath.Join(dir, libName)
}

// InitializeRuntime loads the shared library and creates the ORT environment.
// The returned func tears the environment down.
func InitializeRuntime(libDir string) (func() error, error) {
	ort.SetSharedLibraryPath(RuntimeLibraryPath(libDir))
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx environment: %w", err)
	}
	return ort.DestroyEnvironment, nil
}

type SessionConfig struct {
	ModelPath     string
	InputSize     int
	MaxDetections int
}

// ModelSession is an ONNX Runtime session with preallocated tensors. It
// implements RawRowBackend; Run calls are serialized.
type ModelSession struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]

	mu sync.Mutex
}

func NewModelSession(cfg SessionConfig) (*ModelSession, error) {
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	if cfg.MaxDetections <= 0 {
		cfg.MaxDetections = DefaultMaxDetections
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if err := multierr.Combine(
		options.SetIntraOpNumThreads(runtime.NumCPU()),
		options.SetInterOpNumThreads(runtime.NumCPU()),
	); err != nil {
		return nil, fmt.Errorf("error configuring session threads: %w", err)
	}

	size := int64(cfg.InputSize)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.MaxDetections), RowWidth))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{InputName},
		[]string{OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ModelSession{
		Session: session,
		Input:   inputTensor,
		Output:  outputTensor,
	}, nil
}

// Run copies input into the session, retries a failed inference up to
// RetryAttempts times and returns a copy of the output rows.
func (m *ModelSession) Run(ctx context.Context, input *models.Tensor) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := m.Input.GetData()
	if len(input.Data) != len(data) {
		return nil, fmt.Errorf("input tensor has %d values, session expects %d", len(input.Data), len(data))
	}
	copy(data, input.Data)

	var lastErr error
	for attempt := 1; attempt <= RetryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lastErr = m.Session.Run()
		if lastErr == nil {
			out := m.Output.GetData()
			rows := make([]float32, len(out))
			copy(rows, out)
			return rows, nil
		}

		if attempt < RetryAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * RetryDelayMs * time.Millisecond):
			}
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("unknown error")
}

func (m *ModelSession) Destroy() error {
	var err error
	if m.Session != nil {
		err = multierr.Append(err, m.Session.Destroy())
	}
	if m.Input != nil {
		err = multierr.Append(err, m.Input.Destroy())
	}
	if m.Output != nil {
		err = multierr.Append(err, m.Output.Destroy())
	}
	return err
}
