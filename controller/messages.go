package controller

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const (
	MsgReady            = "AutoWheel AI Demo Ready! 🚀"
	MsgModelLoaded      = "YOLOv8 model loaded successfully! 🤖"
	MsgRemoteLoaded     = "COCO-SSD detector ready! 🔍"
	MsgDemoMode         = "AI model failed to load. Using demo mode."
	MsgStartingCamera   = "Starting camera..."
	MsgCameraStarted    = "Camera started successfully! 📷"
	MsgCameraStopped    = "Camera stopped"
	MsgRealtimeStarted  = "Real-time detection started! 🔄"
	MsgRealtimeStopped  = "Real-time detection stopped"
	MsgRealtimeNeedsCam = "Please start the camera to use real-time detection"
	MsgNoSource         = "Please start camera or upload an image first"
	MsgDetectionFailed  = "Detection failed"
	MsgLoadingImage     = "Loading image..."
	MsgImageFailed      = "Could not read the uploaded image"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Message struct {
	Level Level     `json:"level"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

// Notifier receives user-facing status messages.
type Notifier interface {
	Notify(level Level, text string)
}

// DefaultMessageTTL is how long a message stays visible on a board.
const DefaultMessageTTL = 4 * time.Second

// MessageBoard keeps the latest message visible for a fixed TTL.
type MessageBoard struct {
	clock  clock.Clock
	ttl    time.Duration
	logger *zap.SugaredLogger

	mu      sync.Mutex
	current *Message
}

func NewMessageBoard(clk clock.Clock, ttl time.Duration, logger *zap.SugaredLogger) *MessageBoard {
	return &MessageBoard{clock: clk, ttl: ttl, logger: logger}
}

func (b *MessageBoard) Notify(level Level, text string) {
	msg := &Message{Level: level, Text: text, At: b.clock.Now()}
	b.mu.Lock()
	b.current = msg
	b.mu.Unlock()
	b.logger.Debugw("status message", "level", level, "text", text)
}

// Current returns the latest message while it is still visible.
func (b *MessageBoard) Current() (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil || b.clock.Since(b.current.At) >= b.ttl {
		return Message{}, false
	}
	return *b.current, true
}
