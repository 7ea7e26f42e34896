package main

import (
	"context"
	"image"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hybridgroup/mjpeg"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/capture"
	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/config"
	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/controller"
	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/detections"
	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/render"
)

const (
	flagConfig        = "config"
	flagDebug         = "debug"
	flagAddr          = "addr"
	flagModel         = "model"
	flagRuntimeLib    = "ort-lib"
	flagLabels        = "labels"
	flagThreshold     = "threshold"
	flagInputSize     = "input-size"
	flagRemote        = "remote-detector"
	flagFrameInterval = "frame-interval-ms"
)

func main() {
	app := &cli.App{
		Name:  "autowheel",
		Usage: "detect objects on a camera stream or uploaded images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   config.DefaultConfigPath,
				Usage:   "Load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				EnvVars: []string{"DEBUG"},
				Usage:   "enable debug logging and per-pass timings",
			},
			&cli.StringFlag{Name: flagAddr, EnvVars: []string{"ADDR"}, Usage: "HTTP listen address"},
			&cli.StringFlag{Name: flagModel, EnvVars: []string{"MODEL_PATH"}, Usage: "ONNX model `FILE`"},
			&cli.StringFlag{Name: flagRuntimeLib, EnvVars: []string{"ONNXRUNTIME_LIB"}, Usage: "ONNX Runtime library `DIR` or file"},
			&cli.StringFlag{Name: flagLabels, Usage: "label table name (coco, coco-wheelchair) or .names `FILE`"},
			&cli.Float64Flag{Name: flagThreshold, Usage: "confidence threshold for raw model rows"},
			&cli.IntFlag{Name: flagInputSize, Usage: "square model input size"},
			&cli.StringFlag{Name: flagRemote, EnvVars: []string{"REMOTE_DETECTOR"}, Usage: "websocket detector used without an ONNX model"},
			&cli.IntFlag{Name: flagFrameInterval, Usage: "real-time loop interval in milliseconds"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the config file and applies any flags set on top of it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfigFile(c.String(flagConfig))
	if err != nil {
		return nil, err
	}

	if c.IsSet(flagDebug) {
		cfg.Debug = c.Bool(flagDebug)
	}
	if c.IsSet(flagAddr) {
		cfg.Addr = c.String(flagAddr)
	}
	if c.IsSet(flagModel) {
		cfg.Model.Path = c.String(flagModel)
	}
	if c.IsSet(flagRuntimeLib) {
		cfg.Model.RuntimeLibDir = c.String(flagRuntimeLib)
	}
	if c.IsSet(flagLabels) {
		cfg.Model.Labels = c.String(flagLabels)
	}
	if c.IsSet(flagThreshold) {
		cfg.Model.Threshold = c.Float64(flagThreshold)
	}
	if c.IsSet(flagInputSize) {
		cfg.Model.InputSize = c.Int(flagInputSize)
	}
	if c.IsSet(flagRemote) {
		cfg.RemoteDetector = c.String(flagRemote)
	}
	if c.IsSet(flagFrameInterval) {
		cfg.FrameIntervalMs = c.Int(flagFrameInterval)
	}

	return cfg, cfg.Validate()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	zl, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer zl.Sync()
	logger := zl.Sugar()

	clk := clock.New()
	board := controller.NewMessageBoard(clk, cfg.MessageTTL(), logger)

	detector, closeDetector, err := selectDetector(cfg, logger, board)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeDetector(); err != nil {
			logger.Warnw("failed to release detector", "error", err)
		}
	}()

	canvas := render.NewCanvas()
	overlay, err := render.NewOverlay(canvas)
	if err != nil {
		return err
	}

	ctrl, err := controller.New(controller.Options{
		Detector:  detector,
		Opener:    capture.NewCameraOpener(cfg.Camera, logger),
		Renderer:  overlay,
		Scheduler: controller.NewScheduler(clk, cfg.FrameInterval()),
		Notifier:  board,
		Clock:     clk,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	stream := mjpeg.NewStream()
	canvas.Subscribe(func(img image.Image) {
		data, err := render.EncodeJPEG(img, cfg.JPEGQuality)
		if err != nil {
			logger.Warnw("error while encoding mjpeg frame", "error", err)
			return
		}
		stream.UpdateJPEG(data)
	})

	srv := &http.Server{
		Handler:      newServer(ctrl, canvas, stream, board, cfg, logger).routes(),
		Addr:         cfg.Addr,
		ReadTimeout:  60 * time.Second,
		// /stream is long lived
		WriteTimeout: 0,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("starting server", "addr", srv.Addr, "backend", detector.Mode())
		board.Notify(controller.LevelSuccess, controller.MsgReady)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// selectDetector tries the ONNX model, then the remote detector, and falls
// back to demo mode. Only a broken label table is fatal.
func selectDetector(cfg *config.Config, logger *zap.SugaredLogger, notifier controller.Notifier) (detections.Detector, func() error, error) {
	labels, err := detections.LoadLabels(cfg.Model.Labels)
	if err != nil {
		return nil, nil, err
	}
	pre := detections.NewPreprocessor(cfg.Model.InputSize)
	post := detections.NewPostprocessor(cfg.Model.InputSize, cfg.Model.Threshold, labels)

	if cfg.Model.Path != "" {
		session, closeSession, err := openModel(cfg)
		if err == nil {
			detector, err := detections.NewDetector(session, pre, post)
			if err != nil {
				return nil, nil, multierr.Append(err, closeSession())
			}
			logger.Infow("onnx model loaded", "path", cfg.Model.Path, "input_size", cfg.Model.InputSize, "labels", len(labels))
			notifier.Notify(controller.LevelSuccess, controller.MsgModelLoaded)
			return detector, closeSession, nil
		}
		logger.Warnw("failed to load onnx model", "path", cfg.Model.Path, "error", err)
	}

	if cfg.RemoteDetector != "" {
		remote, err := detections.NewRemoteDetector(cfg.RemoteDetector, logger)
		if err == nil {
			detector, err := detections.NewDetector(remote, pre, post)
			if err != nil {
				return nil, nil, err
			}
			logger.Infow("using remote detector", "url", remote.URL())
			notifier.Notify(controller.LevelSuccess, controller.MsgRemoteLoaded)
			return detector, remote.Close, nil
		}
		logger.Warnw("invalid remote detector", "server", cfg.RemoteDetector, "error", err)
	}

	logger.Warn("no model available, using demo detections")
	notifier.Notify(controller.LevelError, controller.MsgDemoMode)
	return detections.NewDemoDetector(), func() error { return nil }, nil
}

func openModel(cfg *config.Config) (*detections.ModelSession, func() error, error) {
	destroyEnv, err := detections.InitializeRuntime(cfg.Model.RuntimeLibDir)
	if err != nil {
		return nil, nil, err
	}

	session, err := detections.NewModelSession(detections.SessionConfig{
		ModelPath:     cfg.Model.Path,
		InputSize:     cfg.Model.InputSize,
		MaxDetections: cfg.Model.MaxDetections,
	})
	if err != nil {
		return nil, nil, multierr.Append(err, destroyEnv())
	}

	return session, func() error {
		return multierr.Combine(session.Destroy(), destroyEnv())
	}, nil
}
