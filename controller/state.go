package controller

import "encoding/json"

type State int

const (
	StateIdle State = iota
	StateCameraSingle
	StateCameraRealtime
	StateImageLoaded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCameraSingle:
		return "camera_single"
	case StateCameraRealtime:
		return "camera_realtime"
	case StateImageLoaded:
		return "image_loaded"
	default:
		return "unknown"
	}
}

func (s State) CameraActive() bool {
	return s == StateCameraSingle || s == StateCameraRealtime
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
