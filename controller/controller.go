// Package controller drives detection passes over a camera stream or an
// uploaded image and owns the real-time loop.
package controller

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/capture"
	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/detections"
	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/models"
)

var (
	ErrNoSource       = errors.New("no camera or image to detect on")
	ErrCameraInactive = errors.New("camera is not active")
	ErrClosed         = errors.New("controller is closed")
	ErrInvalidImage   = errors.New("invalid image")
)

// Renderer paints a frame with its detections onto the output surface.
type Renderer interface {
	Render(frame models.Frame, detections []models.Detection) error
}

type Options struct {
	Detector  detections.Detector
	Opener    capture.Opener
	Renderer  Renderer
	Scheduler Scheduler
	Notifier  Notifier
	Clock     clock.Clock
	Logger    *zap.SugaredLogger
}

type Status struct {
	State   State              `json:"state"`
	Hidden  bool               `json:"hidden"`
	Metrics models.Metrics     `json:"metrics"`
	Result  *models.PassResult `json:"result,omitempty"`
}

type Controller struct {
	detector  detections.Detector
	opener    capture.Opener
	renderer  Renderer
	scheduler Scheduler
	notifier  Notifier
	clock     clock.Clock
	logger    *zap.SugaredLogger
	fps       *FPSMeter

	ctx    context.Context
	cancel context.CancelFunc

	// passMu is held for the whole of a pass so at most one runs at a time.
	passMu sync.Mutex

	mu         sync.Mutex
	state      State
	source     capture.Source
	generation uint64
	cancelTick func()
	hidden     bool
	closed     bool
	last       *models.PassResult
}

func New(opts Options) (*Controller, error) {
	if opts.Renderer == nil {
		return nil, errors.New("controller needs a renderer")
	}
	if opts.Detector == nil {
		opts.Detector = detections.NewDemoDetector()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = NewScheduler(opts.Clock, DefaultFrameInterval)
	}
	if opts.Notifier == nil {
		opts.Notifier = NewMessageBoard(opts.Clock, DefaultMessageTTL, opts.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		detector:  opts.Detector,
		opener:    opts.Opener,
		renderer:  opts.Renderer,
		scheduler: opts.Scheduler,
		notifier:  opts.Notifier,
		clock:     opts.Clock,
		logger:    opts.Logger,
		fps:       NewFPSMeter(opts.Clock),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartCapture opens the camera. It is a no-op while the camera is active
// and discards a loaded image on success. The device is opened outside the
// state lock.
func (c *Controller) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state.CameraActive() {
		c.mu.Unlock()
		return nil
	}
	// starting the camera is an explicit user action, so the page is visible
	c.hidden = false
	c.mu.Unlock()

	if c.opener == nil {
		ce := &capture.Error{Reason: capture.ReasonUnsupported, Err: errors.New("no camera opener configured")}
		c.notifier.Notify(LevelError, ce.Message())
		return ce
	}

	c.notifier.Notify(LevelInfo, MsgStartingCamera)
	src, err := c.opener.Open(ctx)
	if err != nil {
		ce := capture.Classify(err)
		c.logger.Errorw("camera error", "reason", ce.Reason, "error", err)
		c.notifier.Notify(LevelError, ce.Message())
		return ce
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.closed:
		c.releaseLocked(src, "closed while opening camera")
		return ErrClosed
	case c.state.CameraActive():
		c.releaseLocked(src, "camera already started")
		return nil
	case c.hidden:
		c.releaseLocked(src, "page hidden while opening camera")
		return nil
	}

	if c.source != nil {
		if err := c.source.Close(); err != nil {
			c.logger.Warnw("failed to close image source", "error", err)
		}
	}
	c.source = src
	c.state = StateCameraSingle
	c.logger.Infow("camera active", "state", c.state)
	c.notifier.Notify(LevelSuccess, MsgCameraStarted)
	return nil
}

func (c *Controller) releaseLocked(src capture.Source, reason string) {
	c.logger.Infow("releasing camera", "reason", reason)
	if err := src.Close(); err != nil {
		c.logger.Warnw("failed to release camera", "error", err)
	}
}

func (c *Controller) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.CameraActive() {
		return ErrCameraInactive
	}
	err := c.stopCameraLocked()
	c.notifier.Notify(LevelInfo, MsgCameraStopped)
	return err
}

func (c *Controller) stopCameraLocked() error {
	c.stopLoopLocked()
	var err error
	if c.source != nil {
		err = errors.Wrap(c.source.Close(), "close camera")
		c.source = nil
	}
	c.state = StateIdle
	c.logger.Infow("camera stopped")
	return err
}

// stopLoopLocked cancels the pending tick and invalidates in-flight ones.
func (c *Controller) stopLoopLocked() {
	if c.cancelTick != nil {
		c.cancelTick()
		c.cancelTick = nil
	}
	c.generation++
	c.fps.Reset()
}

// ToggleRealtime switches between single-shot and continuous detection
// and reports whether the loop is now running.
func (c *Controller) ToggleRealtime() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateCameraSingle:
		c.state = StateCameraRealtime
		c.stopLoopLocked()
		c.scheduleLocked(c.generation)
		c.notifier.Notify(LevelSuccess, MsgRealtimeStarted)
		return true, nil
	case StateCameraRealtime:
		c.stopLoopLocked()
		c.state = StateCameraSingle
		c.notifier.Notify(LevelInfo, MsgRealtimeStopped)
		return false, nil
	default:
		c.logger.Warnw("real-time toggle without an active camera", "state", c.state)
		c.notifier.Notify(LevelWarning, MsgRealtimeNeedsCam)
		return false, ErrCameraInactive
	}
}

func (c *Controller) scheduleLocked(gen uint64) {
	c.cancelTick = c.scheduler.Schedule(func() { c.tick(gen) })
}

// tick runs one realtime pass and schedules the next. Ticks from a previous
// generation do nothing.
func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateCameraRealtime || c.hidden || c.closed {
		c.mu.Unlock()
		return
	}
	src := c.source
	c.cancelTick = nil
	c.mu.Unlock()

	if _, err := c.runPass(c.ctx, src); err != nil {
		c.logger.Debugw("realtime pass failed", "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation || c.state != StateCameraRealtime || c.hidden || c.closed {
		return
	}
	c.fps.Tick()
	c.scheduleLocked(gen)
}

// RunSinglePass runs one pass on the current source.
func (c *Controller) RunSinglePass(ctx context.Context) (*models.PassResult, error) {
	c.mu.Lock()
	src := c.source
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return nil, ErrClosed
	}
	if src == nil {
		c.notifier.Notify(LevelWarning, MsgNoSource)
		return nil, ErrNoSource
	}
	return c.runPass(ctx, src)
}

// LoadImage decodes r, stops any active camera and runs a pass on the image.
func (c *Controller) LoadImage(ctx context.Context, r io.Reader) (*models.PassResult, error) {
	c.notifier.Notify(LevelInfo, MsgLoadingImage)

	var res capture.DecodeResult
	select {
	case res = <-capture.DecodeAsync(ctx, r):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res.Err != nil {
		c.notifier.Notify(LevelError, MsgImageFailed)
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, res.Err)
	}

	src := capture.NewImageSource(res.Frame)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	var err error
	if c.state.CameraActive() {
		err = c.stopCameraLocked()
		c.notifier.Notify(LevelInfo, MsgCameraStopped)
	} else if c.source != nil {
		err = c.source.Close()
	}
	c.source = src
	c.state = StateImageLoaded
	c.mu.Unlock()

	if err != nil {
		c.logger.Warnw("failed to release previous source", "error", err)
	}
	c.logger.Infow("image loaded", "format", res.Format, "width", res.Frame.Width, "height", res.Frame.Height)

	return c.runPass(ctx, src)
}

// SetHidden records page visibility. Hiding the page stops the camera.
func (c *Controller) SetHidden(hidden bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hidden = hidden
	if hidden && c.state.CameraActive() {
		c.logger.Infow("page hidden, stopping camera")
		return c.stopCameraLocked()
	}
	return nil
}

func (c *Controller) runPass(ctx context.Context, src capture.Source) (*models.PassResult, error) {
	c.passMu.Lock()
	defer c.passMu.Unlock()

	start := c.clock.Now()
	result := &models.PassResult{
		ID:      uuid.New().String(),
		Backend: c.detector.Mode(),
	}
	result.Timings.RequestID = result.ID

	dets, err := c.detect(ctx, src, result)
	if err != nil {
		if errors.Is(err, capture.ErrSourceClosed) {
			// the camera was stopped under an in-flight pass
			c.logger.Debugw("source closed during pass", "request_id", result.ID)
			return nil, err
		}
		c.logger.Errorw("detection failed", "request_id", result.ID, "error", err)
		c.notifier.Notify(LevelError, MsgDetectionFailed)
		return nil, err
	}

	result.Detections = dets
	result.ProcessingTime = c.clock.Since(start)
	result.Timings.Total = result.ProcessingTime
	c.logTimings(&result.Timings)

	c.mu.Lock()
	c.last = result
	c.mu.Unlock()
	return result, nil
}

func (c *Controller) detect(ctx context.Context, src capture.Source, result *models.PassResult) ([]models.Detection, error) {
	frame, err := src.Next(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read frame")
	}

	dets, err := c.detector.Detect(ctx, frame, &result.Timings)
	if err != nil {
		return nil, errors.Wrap(err, "detect")
	}
	models.SortDetectionsByConfidence(dets)

	renderStart := c.clock.Now()
	if err := c.renderer.Render(frame, dets); err != nil {
		return nil, errors.Wrap(err, "render")
	}
	result.Timings.Render = c.clock.Since(renderStart)
	return dets, nil
}

func (c *Controller) logTimings(t *models.ProcessingTimings) {
	c.logger.Debugw("pass timings",
		"request_id", t.RequestID,
		"resize", t.Resize,
		"preprocess", t.Preprocess,
		"inference", t.Inference,
		"postprocess", t.Postprocess,
		"render", t.Render,
		"total", t.Total)
}

// Status reports the state, the last pass and its metrics.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	metrics := models.Metrics{
		FPS:             c.fps.FPS(),
		ModelStatus:     c.detector.Mode().DisplayName(),
		DetectionStatus: "Single Detection",
	}
	if c.state == StateCameraRealtime {
		metrics.DetectionStatus = fmt.Sprintf("Real-time (%dFPS)", metrics.FPS)
	}
	if c.last != nil {
		metrics.ObjectCount = c.last.ObjectCount()
		metrics.AverageConfidence = c.last.AverageConfidence()
		metrics.ProcessingTimeMs = float64(c.last.ProcessingTime.Microseconds()) / 1000
	}

	return Status{
		State:   c.state,
		Hidden:  c.hidden,
		Metrics: metrics,
		Result:  c.last,
	}
}

func (c *Controller) Mode() models.BackendMode {
	return c.detector.Mode()
}

// Close stops the loop and releases the current source.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	c.stopLoopLocked()

	var err error
	if c.source != nil {
		err = multierr.Append(err, c.source.Close())
		c.source = nil
	}
	c.state = StateIdle
	return err
}
