package capture

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/pion/mediadevices/pkg/driver/availability"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/models"
)

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		name   string
		err    error
		reason Reason
	}{
		{"fs permission", errors.Wrap(fs.ErrPermission, "open /dev/video0"), ReasonPermissionDenied},
		{"eacces", &os.PathError{Op: "open", Path: "/dev/video0", Err: syscall.EACCES}, ReasonPermissionDenied},
		{"no device", errors.Wrap(availability.ErrNoDevice, "probe"), ReasonDeviceNotFound},
		{"no driver", errors.New("failed to find the best driver that fits the constraints"), ReasonDeviceNotFound},
		{"missing node", &os.PathError{Op: "open", Path: "/dev/video9", Err: syscall.ENOENT}, ReasonDeviceNotFound},
		{"other", errors.New("unsupported pixel format"), ReasonUnsupported},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ce := Classify(tc.err)
			test.That(t, ce.Reason, test.ShouldEqual, tc.reason)
			test.That(t, errors.Is(ce, tc.err), test.ShouldBeTrue)
		})
	}

	test.That(t, Classify(nil), test.ShouldBeNil)

	already := &Error{Reason: ReasonDeviceNotFound}
	test.That(t, Classify(errors.Wrap(already, "open")), test.ShouldEqual, already)
}

func TestErrorMessages(t *testing.T) {
	seen := map[string]bool{}
	for _, reason := range []Reason{ReasonPermissionDenied, ReasonDeviceNotFound, ReasonUnsupported} {
		msg := (&Error{Reason: reason}).Message()
		test.That(t, strings.HasPrefix(msg, "Camera access failed. "), test.ShouldBeTrue)
		seen[msg] = true
	}
	test.That(t, len(seen), test.ShouldEqual, 3)
	test.That(t, (&Error{Reason: ReasonDeviceNotFound}).Message(), test.ShouldContainSubstring, "No camera found")
}

func TestImageSource(t *testing.T) {
	frame := models.Frame{Width: 1, Height: 1, Pix: []uint8{1, 2, 3, 4}, Origin: models.OriginImage}
	src := NewImageSource(frame)

	for i := 0; i < 2; i++ {
		got, err := src.Next(context.Background())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldResemble, frame)
	}

	test.That(t, src.Close(), test.ShouldBeNil)
	_, err := src.Next(context.Background())
	test.That(t, errors.Is(err, ErrSourceClosed), test.ShouldBeTrue)
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.SetNRGBA(0, 0, color.NRGBA{R: 9, G: 8, B: 7, A: 255})
	var buf bytes.Buffer
	test.That(t, png.Encode(&buf, img), test.ShouldBeNil)
	return buf.Bytes()
}

func TestDecodeImage(t *testing.T) {
	frame, format, err := DecodeImage(bytes.NewReader(encodePNG(t, 3, 2)))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, format, test.ShouldEqual, "png")
	test.That(t, frame.Width, test.ShouldEqual, 3)
	test.That(t, frame.Height, test.ShouldEqual, 2)
	test.That(t, frame.Origin, test.ShouldEqual, models.OriginImage)
	test.That(t, frame.Pix[:4], test.ShouldResemble, []uint8{9, 8, 7, 255})

	_, _, err = DecodeImage(strings.NewReader("not an image"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDecodeAsync(t *testing.T) {
	select {
	case res := <-DecodeAsync(context.Background(), bytes.NewReader(encodePNG(t, 4, 4))):
		test.That(t, res.Err, test.ShouldBeNil)
		test.That(t, res.Frame.Width, test.ShouldEqual, 4)
	case <-time.After(5 * time.Second):
		t.Fatal("decode did not finish")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := <-DecodeAsync(ctx, bytes.NewReader(encodePNG(t, 4, 4)))
	test.That(t, errors.Is(res.Err, context.Canceled), test.ShouldBeTrue)
}

func TestDefaultCameraConfig(t *testing.T) {
	cfg := DefaultCameraConfig()
	test.That(t, cfg, test.ShouldResemble, CameraConfig{Width: 1280, Height: 720, FrameRate: 30})
}
