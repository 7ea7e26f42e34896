package detections

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/models"
)

const remoteJPEGQuality = 90

// RemoteDetector is a DecodedBackend talking to a detection server over a
// websocket: one binary JPEG message out, one JSON array of detections back.
type RemoteDetector struct {
	serverURL string
	dialer    *websocket.Dialer
	logger    *zap.SugaredLogger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewRemoteDetector accepts a ws:// or wss:// URL, or a bare host:port which
// is served at /ws.
func NewRemoteDetector(server string, logger *zap.SugaredLogger) (*RemoteDetector, error) {
	serverURL, err := remoteURL(server)
	if err != nil {
		return nil, err
	}
	return &RemoteDetector{
		serverURL: serverURL,
		dialer:    websocket.DefaultDialer,
		logger:    logger,
	}, nil
}

func remoteURL(server string) (string, error) {
	if !strings.Contains(server, "://") {
		u := url.URL{Scheme: "ws", Host: server, Path: "/ws"}
		return u.String(), nil
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse detector url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("detector url must use ws or wss, got %q", u.Scheme)
	}
	return u.String(), nil
}

func (d *RemoteDetector) URL() string {
	return d.serverURL
}

func (d *RemoteDetector) Detect(ctx context.Context, frame models.Frame) ([]DecodedDetection, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image(), &jpeg.Options{Quality: remoteJPEGQuality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}

	var deadline time.Time
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		d.drop(err)
		return nil, err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
		d.drop(err)
		return nil, fmt.Errorf("send frame: %w", err)
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		d.drop(err)
		return nil, err
	}
	_, message, err := conn.ReadMessage()
	if err != nil {
		d.drop(err)
		return nil, fmt.Errorf("read detections: %w", err)
	}

	var results []DecodedDetection
	if err := json.Unmarshal(message, &results); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}
	return results, nil
}

func (d *RemoteDetector) connect(ctx context.Context) (*websocket.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}

	d.logger.Debugw("connecting to detector server", "url", d.serverURL)
	conn, _, err := d.dialer.DialContext(ctx, d.serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to detector %s: %w", d.serverURL, err)
	}
	d.logger.Infow("connected to detection server", "url", d.serverURL)
	d.conn = conn
	return conn, nil
}

// drop closes a broken connection so the next Detect redials.
func (d *RemoteDetector) drop(cause error) {
	if d.conn == nil {
		return
	}
	d.logger.Warnw("detector connection lost", "url", d.serverURL, "error", cause)
	d.conn.Close()
	d.conn = nil
}

func (d *RemoteDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	writeErr := d.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	closeErr := d.conn.Close()
	d.conn = nil
	if writeErr != nil && writeErr != websocket.ErrCloseSent {
		return writeErr
	}
	return closeErr
}
