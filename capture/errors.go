package capture

import (
	"io/fs"
	"strings"

	"github.com/pion/mediadevices/pkg/driver/availability"
	"github.com/pkg/errors"
)

type Reason string

const (
	ReasonPermissionDenied Reason = "permission_denied"
	ReasonDeviceNotFound   Reason = "device_not_found"
	ReasonUnsupported      Reason = "unsupported"
)

const cameraFailedPrefix = "Camera access failed. "

var reasonMessages = map[Reason]string{
	ReasonPermissionDenied: cameraFailedPrefix + "Please allow camera permissions in your browser settings.",
	ReasonDeviceNotFound:   cameraFailedPrefix + "No camera found. Please use image upload instead.",
	ReasonUnsupported:      cameraFailedPrefix + "Please try using image upload feature.",
}

// Error is a classified camera acquisition failure.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "camera " + string(e.Reason)
	}
	return "camera " + string(e.Reason) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the text shown to the user for this failure.
func (e *Error) Message() string {
	return reasonMessages[e.Reason]
}

// Classify maps an acquisition error onto a Reason. Anything not recognised
// as a permission or missing-device problem is unsupported.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	reason := ReasonUnsupported
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, fs.ErrPermission), strings.Contains(msg, "permission denied"):
		reason = ReasonPermissionDenied
	case errors.Is(err, availability.ErrNoDevice), errors.Is(err, fs.ErrNotExist),
		strings.Contains(msg, "failed to find"), strings.Contains(msg, "no such device"):
		reason = ReasonDeviceNotFound
	}
	return &Error{Reason: reason, Err: err}
}
