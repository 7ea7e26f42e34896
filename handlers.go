package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/hybridgroup/mjpeg"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/capture"
	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/config"
	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/controller"
	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/models"
	"github.com/Kayeerasoftware/the-mark-autowheel-innovators/render"
)

const maxUploadBytes = 10 << 20

type server struct {
	ctrl           *controller.Controller
	canvas         *render.Canvas
	stream         *mjpeg.Stream
	board          *controller.MessageBoard
	logger         *zap.SugaredLogger
	jpegQuality    int
	allowedOrigins []string
	// debug adds the underlying error to error responses.
	debug bool
}

func newServer(
	ctrl *controller.Controller,
	canvas *render.Canvas,
	stream *mjpeg.Stream,
	board *controller.MessageBoard,
	cfg *config.Config,
	logger *zap.SugaredLogger,
) *server {
	return &server{
		ctrl:           ctrl,
		canvas:         canvas,
		stream:         stream,
		board:          board,
		logger:         logger,
		jpegQuality:    cfg.JPEGQuality,
		allowedOrigins: cfg.AllowedOrigins,
		debug:          cfg.Debug,
	}
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/camera/start", s.handleStartCamera).Methods(http.MethodPost)
	r.HandleFunc("/camera/stop", s.handleStopCamera).Methods(http.MethodPost)
	r.HandleFunc("/realtime/toggle", s.handleToggleRealtime).Methods(http.MethodPost)
	r.HandleFunc("/detect", s.handleDetect).Methods(http.MethodPost)
	r.HandleFunc("/image", s.handleImage).Methods(http.MethodPost)
	r.HandleFunc("/visibility", s.handleVisibility).Methods(http.MethodPost)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/snapshot.jpg", s.handleSnapshot).Methods(http.MethodGet)
	r.Handle("/stream", s.stream).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return c.Handler(r)
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type detectionView struct {
	models.Detection
	Tier models.ConfidenceTier `json:"tier"`
}

type passResponse struct {
	ID         string             `json:"id"`
	Backend    models.BackendMode `json:"backend"`
	Detections []detectionView    `json:"detections"`
	Metrics    models.Metrics     `json:"metrics"`
}

type statusResponse struct {
	State   controller.State    `json:"state"`
	Hidden  bool                `json:"hidden"`
	Metrics models.Metrics      `json:"metrics"`
	Results []detectionView     `json:"results"`
	Message *controller.Message `json:"message,omitempty"`
}

func toViews(dets []models.Detection) []detectionView {
	return lo.Map(dets, func(d models.Detection, _ int) detectionView {
		return detectionView{Detection: d, Tier: d.Tier()}
	})
}

func (s *server) status() statusResponse {
	st := s.ctrl.Status()
	resp := statusResponse{
		State:   st.State,
		Hidden:  st.Hidden,
		Metrics: st.Metrics,
		Results: []detectionView{},
	}
	if st.Result != nil {
		resp.Results = toViews(st.Result.Detections)
	}
	if msg, ok := s.board.Current(); ok {
		resp.Message = &msg
	}
	return resp
}

func (s *server) handleStartCamera(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.StartCapture(r.Context()); err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, s.status())
}

func (s *server) handleStopCamera(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.StopCapture(); err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, s.status())
}

func (s *server) handleToggleRealtime(w http.ResponseWriter, _ *http.Request) {
	if _, err := s.ctrl.ToggleRealtime(); err != nil {
		s.sendError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, s.status())
}

func (s *server) handleDetect(w http.ResponseWriter, r *http.Request) {
	result, err := s.ctrl.RunSinglePass(r.Context())
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendPass(w, result)
}

func (s *server) handleImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var imgBytes []byte
	var err error
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		imgBytes, err = handleJSONRequest(r)
	case "multipart/form-data":
		imgBytes, err = handleMultipartRequest(r)
	default:
		imgBytes, err = handleRawRequest(r)
	}
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.ctrl.LoadImage(r.Context(), bytes.NewReader(imgBytes))
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendPass(w, result)
}

func (s *server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hidden bool `json:"hidden"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ctrl.SetHidden(req.Hidden); err != nil {
		s.logger.Warnw("failed to release camera on hide", "error", err)
	}
	sendJSON(w, http.StatusOK, s.status())
}

func (s *server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, s.status())
}

func (s *server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, s.ctrl.Status().Metrics)
}

func (s *server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	img, _ := s.canvas.Snapshot()
	if img == nil {
		sendErrorResponse(w, "no_frame", "Nothing has been rendered yet", http.StatusNotFound)
		return
	}
	data, err := render.EncodeJPEG(img, s.jpegQuality)
	if err != nil {
		sendErrorResponse(w, "encode_error", err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}

func (s *server) sendPass(w http.ResponseWriter, result *models.PassResult) {
	sendJSON(w, http.StatusOK, passResponse{
		ID:         result.ID,
		Backend:    result.Backend,
		Detections: toViews(result.Detections),
		Metrics:    s.ctrl.Status().Metrics,
	})
}

// sendError maps controller and capture errors onto the JSON envelope.
func (s *server) sendError(w http.ResponseWriter, err error) {
	resp, status := s.errorResponse(err)
	if s.debug {
		resp.Details = err.Error()
	}
	sendJSON(w, status, resp)
}

func (s *server) errorResponse(err error) (ErrorResponse, int) {
	var ce *capture.Error
	switch {
	case errors.As(err, &ce):
		status := http.StatusNotImplemented
		switch ce.Reason {
		case capture.ReasonPermissionDenied:
			status = http.StatusForbidden
		case capture.ReasonDeviceNotFound:
			status = http.StatusNotFound
		}
		return ErrorResponse{Code: string(ce.Reason), Message: ce.Message()}, status
	case errors.Is(err, controller.ErrNoSource):
		return ErrorResponse{Code: "no_source", Message: controller.MsgNoSource}, http.StatusConflict
	case errors.Is(err, controller.ErrCameraInactive), errors.Is(err, capture.ErrSourceClosed):
		return ErrorResponse{Code: "camera_inactive", Message: "Camera is not active"}, http.StatusConflict
	case errors.Is(err, controller.ErrInvalidImage):
		return ErrorResponse{Code: "invalid_image", Message: controller.MsgImageFailed}, http.StatusBadRequest
	case errors.Is(err, controller.ErrClosed):
		return ErrorResponse{Code: "unavailable", Message: err.Error()}, http.StatusServiceUnavailable
	default:
		s.logger.Errorw("request failed", "error", err)
		return ErrorResponse{Code: "processing_error", Message: controller.MsgDetectionFailed}, http.StatusInternalServerError
	}
}

func handleJSONRequest(r *http.Request) ([]byte, error) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	// accept data URLs as produced by browser file readers
	if strings.HasPrefix(req.Image, "data:") {
		if i := strings.IndexByte(req.Image, ','); i >= 0 {
			req.Image = req.Image[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(req.Image)
}

func handleMultipartRequest(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, err
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func handleRawRequest(r *http.Request) ([]byte, error) {
	return io.ReadAll(r.Body)
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	sendJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
