// Package handlers implements the HTTP surface of the embedding service.
package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Brownie44l1/facenet-api/internal/metrics"
	"github.com/Brownie44l1/facenet-api/internal/model"
	"github.com/Brownie44l1/facenet-api/internal/preprocess"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// HomeMessage is the liveness text served at GET /.
	HomeMessage = "Face Embedding Generator API is running!"

	// MsgImageMissing is returned when the request carries no image.
	MsgImageMissing = "Image data not provided"

	// maxUploadMemory bounds the in-memory part of multipart uploads.
	maxUploadMemory = 10 << 20
)

// Embedder runs the model on a prepared tensor.
type Embedder interface {
	Embed(ctx context.Context, t *model.Tensor) ([]float32, error)
}

// Handler serves embedding requests.
type Handler struct {
	embedder     Embedder
	preprocessor *preprocess.Preprocessor
	metrics      metrics.Metrics
}

// NewHandler wires the handler to a loaded model. A nil m disables metrics.
func NewHandler(embedder Embedder, pre *preprocess.Preprocessor, m metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	return &Handler{
		embedder:     embedder,
		preprocessor: pre,
		metrics:      m,
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

// Home is the liveness probe. It never touches the model.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, HomeMessage)
}

// Health reports service status as JSON.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GenerateEmbedding handles {"image": "<base64>"} bodies.
func (h *Handler) GenerateEmbedding(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.fail(w, logger, fmt.Errorf("read request body: %w", err))
		return
	}

	req, err := decodeEmbeddingRequest(body)
	if err != nil {
		h.fail(w, logger, err)
		return
	}

	if req.Image == nil {
		h.metrics.IncrementErrors(metrics.ErrorValidation)
		writeError(w, http.StatusBadRequest, MsgImageMissing)
		return
	}

	start := time.Now()
	imageData, err := base64.StdEncoding.DecodeString(*req.Image)
	h.metrics.ObserveStageDuration(metrics.StageDecode, time.Since(start).Seconds())
	if err != nil {
		h.fail(w, logger, fmt.Errorf("decode base64 image: %w", err))
		return
	}

	h.respond(w, r, logger, imageData)
}

// decodeEmbeddingRequest requires the body to be a JSON object. Only the exact
// key "image" counts; a null value is the same as a missing one.
func decodeEmbeddingRequest(body []byte) (model.EmbeddingRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return model.EmbeddingRequest{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	if fields == nil {
		return model.EmbeddingRequest{}, errors.New("invalid JSON body: expected an object")
	}

	var req model.EmbeddingRequest
	if raw, ok := fields["image"]; ok {
		if err := json.Unmarshal(raw, &req.Image); err != nil {
			return model.EmbeddingRequest{}, fmt.Errorf("invalid JSON body: image: %w", err)
		}
	}
	return req, nil
}

// GenerateEmbeddingFromUpload handles multipart uploads with an "image" file field.
func (h *Handler) GenerateEmbeddingFromUpload(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.fail(w, logger, fmt.Errorf("parse multipart form: %w", err))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			h.metrics.IncrementErrors(metrics.ErrorValidation)
			writeError(w, http.StatusBadRequest, MsgImageMissing)
			return
		}
		h.fail(w, logger, fmt.Errorf("read form file: %w", err))
		return
	}
	defer file.Close()

	logger.Debug().Str("filename", header.Filename).Int64("size", header.Size).Msg("Received file")

	imageData, err := io.ReadAll(file)
	if err != nil {
		h.fail(w, logger, fmt.Errorf("read uploaded image: %w", err))
		return
	}

	h.respond(w, r, logger, imageData)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, imageData []byte) {
	embedding, err := h.Embed(r.Context(), imageData)
	if err != nil {
		h.fail(w, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.EmbeddingResponse{Embedding: embedding})
}

// Embed runs preprocessing and inference on raw image bytes.
func (h *Handler) Embed(ctx context.Context, imageData []byte) ([]float32, error) {
	logger := zerolog.Ctx(ctx)

	start := time.Now()
	tensor, err := h.preprocessor.Preprocess(imageData)
	preprocessTime := time.Since(start)
	h.metrics.ObserveStageDuration(metrics.StagePreprocess, preprocessTime.Seconds())
	if err != nil {
		return nil, err
	}

	start = time.Now()
	embedding, err := h.embedder.Embed(ctx, tensor)
	inferenceTime := time.Since(start)
	h.metrics.ObserveStageDuration(metrics.StageInference, inferenceTime.Seconds())
	if err != nil {
		return nil, err
	}

	h.metrics.IncrementEmbeddings()
	logger.Debug().
		Int("bytes", len(imageData)).
		Ints64("shape", tensor.Shape).
		Dur("preprocess", preprocessTime).
		Dur("inference", inferenceTime).
		Int("dimensions", len(embedding)).
		Msg("Embedding generated")

	return embedding, nil
}

// fail maps any pipeline error to a 500 carrying the error text.
func (h *Handler) fail(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	kind := metrics.ErrorOther
	var decodeErr *preprocess.DecodeError
	var inferErr *model.InferenceError
	var base64Err base64.CorruptInputError
	switch {
	case errors.As(err, &decodeErr), errors.As(err, &base64Err):
		kind = metrics.ErrorDecode
	case errors.As(err, &inferErr):
		kind = metrics.ErrorInference
	}
	h.metrics.IncrementErrors(kind)

	logger.Error().Err(err).Str("kind", kind).Msg("Embedding request failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}
