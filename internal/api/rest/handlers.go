package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	app "mri-classifier/internal/application"
	"mri-classifier/internal/domain/entity"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
	// запас на заголовки multipart сверх размера файла
	multipartOverhead = 64 << 10
	// клиент закрыл соединение до ответа (код nginx)
	statusClientClosedRequest = 499
)

type errorResponse struct {
	Detail string `json:"detail"`
}

type predictionResponse struct {
	Prediction       string             `json:"prediction"`
	HasTumor         bool               `json:"has_tumor"`
	Confidence       float64            `json:"confidence"`
	AllProbabilities map[string]float64 `json:"all_probabilities"`
	Message          string             `json:"message"`
}

type recordResponse struct {
	ID               string             `json:"id"`
	Source           string             `json:"source"`
	ImageSHA256      string             `json:"image_sha256"`
	Prediction       string             `json:"prediction"`
	HasTumor         bool               `json:"has_tumor"`
	Confidence       float64            `json:"confidence"`
	AllProbabilities map[string]float64 `json:"all_probabilities"`
	CreatedAt        time.Time          `json:"created_at"`
}

func newPredictionResponse(res *entity.PredictionResult) predictionResponse {
	return predictionResponse{
		Prediction:       string(res.Label),
		HasTumor:         res.HasTumor,
		Confidence:       res.Confidence,
		AllProbabilities: res.Probabilities.Map(),
		Message:          res.Message,
	}
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Brain Tumor Detection API", "status": "running"})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "model_loaded": s.predictions.Ready()})
}

func (s *Server) predict(c *gin.Context) {
	if !s.predictions.Ready() {
		abort(c, http.StatusServiceUnavailable, "Model not loaded")
		return
	}

	limit := s.opts.MaxUploadBytes + multipartOverhead
	if c.Request.ContentLength > limit {
		abort(c, http.StatusRequestEntityTooLarge, s.tooLargeDetail())
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abort(c, http.StatusRequestEntityTooLarge, s.tooLargeDetail())
			return
		}
		abort(c, http.StatusBadRequest, "Missing image file (form field 'image')")
		return
	}

	if !strings.HasPrefix(file.Header.Get("Content-Type"), "image/") {
		abort(c, http.StatusBadRequest, "File must be an image")
		return
	}
	if file.Size > s.opts.MaxUploadBytes {
		abort(c, http.StatusRequestEntityTooLarge, s.tooLargeDetail())
		return
	}

	f, err := file.Open()
	if err != nil {
		abort(c, http.StatusBadRequest, "Failed to open uploaded file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		abort(c, http.StatusBadRequest, "Failed to read image")
		return
	}
	if len(data) == 0 {
		abort(c, http.StatusBadRequest, "Image file is empty")
		return
	}

	res, err := s.predictions.Predict(c.Request.Context(), app.SourceHTTP, data)
	if err != nil {
		status := statusFor(err)
		switch {
		case status == statusClientClosedRequest:
			s.log.Debug("prediction canceled", zap.String("request_id", c.GetString(requestIDHeader)))
		case status >= http.StatusInternalServerError:
			s.log.Error("prediction failed", zap.String("request_id", c.GetString(requestIDHeader)), zap.Error(err))
		}
		abort(c, status, detailFor(status, err))
		return
	}

	c.JSON(http.StatusOK, newPredictionResponse(res))
}

func (s *Server) recent(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abort(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := s.predictions.History(c.Request.Context(), limit)
	if err != nil {
		s.log.Error("read history", zap.Error(err))
		abort(c, http.StatusInternalServerError, "Failed to read prediction history")
		return
	}

	out := make([]recordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, recordResponse{
			ID:               r.ID,
			Source:           r.Source,
			ImageSHA256:      r.ImageSHA256,
			Prediction:       string(r.Label),
			HasTumor:         r.HasTumor,
			Confidence:       r.Confidence,
			AllProbabilities: r.Probabilities.Map(),
			CreatedAt:        r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"predictions": out})
}

func (s *Server) tooLargeDetail() string {
	return fmt.Sprintf("Image file exceeds %d bytes", s.opts.MaxUploadBytes)
}

// statusFor сопоставляет ошибки ядра с HTTP-статусами.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrDecode), errors.Is(err, entity.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrModelNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func detailFor(status int, err error) string {
	switch status {
	case http.StatusServiceUnavailable:
		return "Model not loaded"
	case http.StatusGatewayTimeout:
		return "Request timed out"
	case statusClientClosedRequest:
		return "Request canceled"
	default:
		return "Error processing image: " + err.Error()
	}
}

func abort(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, errorResponse{Detail: detail})
}
