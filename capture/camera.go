package capture

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/driver"
	mediadevicescamera "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/models"
)

// CameraConfig holds the ideal capture constraints; the driver picks the
// closest mode it supports.
type CameraConfig struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frame_rate"`
}

func DefaultCameraConfig() CameraConfig {
	return CameraConfig{Width: 1280, Height: 720, FrameRate: 30}
}

func (c CameraConfig) constraints() mediadevices.MediaStreamConstraints {
	return mediadevices.MediaStreamConstraints{
		Video: func(constraint *mediadevices.MediaTrackConstraints) {
			constraint.Width = prop.IntRanged{Min: 0, Ideal: c.Width, Max: 4096}
			constraint.Height = prop.IntRanged{Min: 0, Ideal: c.Height, Max: 2160}
			constraint.FrameRate = prop.FloatRanged{Min: 0, Ideal: float32(c.FrameRate), Max: 140}
		},
	}
}

// CameraOpener opens the first video recorder mediadevices can find.
type CameraOpener struct {
	Config CameraConfig
	Logger *zap.SugaredLogger
	Clock  clock.Clock
}

func NewCameraOpener(cfg CameraConfig, logger *zap.SugaredLogger) *CameraOpener {
	return &CameraOpener{Config: cfg, Logger: logger, Clock: clock.New()}
}

func (o *CameraOpener) Open(ctx context.Context) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mediadevicescamera.Initialize()
	drivers := driver.GetManager().Query(driver.FilterVideoRecorder())
	if len(drivers) == 0 {
		return nil, &Error{Reason: ReasonDeviceNotFound, Err: errors.New("no video recorder drivers")}
	}
	o.Logger.Debugw("found video recorders", "count", len(drivers))

	stream, err := mediadevices.GetUserMedia(o.Config.constraints())
	if err != nil {
		return nil, Classify(errors.Wrap(err, "get user media"))
	}

	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, &Error{Reason: ReasonDeviceNotFound, Err: errors.New("stream has no video track")}
	}
	videoTrack, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		err := multierr.Combine(closeTracks(stream.GetTracks()), errors.Errorf("unexpected track type %T", tracks[0]))
		return nil, &Error{Reason: ReasonUnsupported, Err: err}
	}

	o.Logger.Infow("camera started",
		"track", videoTrack.ID(),
		"ideal_width", o.Config.Width,
		"ideal_height", o.Config.Height)

	return &cameraSource{
		stream: stream,
		reader: videoTrack.NewReader(false),
		clock:  o.Clock,
	}, nil
}

type cameraSource struct {
	stream mediadevices.MediaStream
	reader video.Reader
	clock  clock.Clock

	mu     sync.Mutex
	closed bool
}

func (s *cameraSource) Next(ctx context.Context) (models.Frame, error) {
	if err := ctx.Err(); err != nil {
		return models.Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.Frame{}, ErrSourceClosed
	}

	img, release, err := s.reader.Read()
	if release != nil {
		defer release()
	}
	if err != nil {
		return models.Frame{}, errors.Wrap(err, "read camera frame")
	}
	return models.NewFrame(img, models.OriginCamera, s.clock.Now()), nil
}

// Close stops every track of the stream.
func (s *cameraSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return closeTracks(s.stream.GetTracks())
}

func closeTracks(tracks []mediadevices.Track) error {
	var err error
	for _, track := range tracks {
		err = multierr.Append(err, track.Close())
	}
	return err
}
