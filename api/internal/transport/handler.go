package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/you-humble/meshbatch/api/internal/domain"
	core "github.com/you-humble/meshbatch/core/domain"
)

const formFiles = "files"

type Usecase interface {
	Submit(ctx context.Context, owner string, uploads []domain.Upload, params map[string]string) (core.SubmitResponse, error)
	Poll(ctx context.Context, requester, jobID string) (core.Snapshot, error)
	Stream(ctx context.Context, requester, jobID string) (iter.Seq2[core.Snapshot, error], error)
	Artifact(ctx context.Context, requester, jobID, key string) (domain.DownloadResult, error)
	ForceFail(ctx context.Context, requester, jobID, key, reason string) error
	Evict(ctx context.Context, requester, jobID string) error
}

type handler struct {
	maxUploadBytes int64
	usecase        Usecase
}

func NewHandler(maxUploadBytesMb int64, uc Usecase) *handler {
	return &handler{
		maxUploadBytes: maxUploadBytesMb << 20,
		usecase:        uc,
	}
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "submit")

	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		logger.Warn("ParseMultipartForm", slog.String("error", err.Error()))
		writeMessage(w, http.StatusBadRequest, "unable to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[formFiles]
	uploads := make([]domain.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			logger.Error("open part", slog.String("file_name", fh.Filename), slog.String("error", err.Error()))
			writeMessage(w, http.StatusBadRequest, "unable to read "+fh.Filename)
			return
		}
		defer f.Close()

		uploads = append(uploads, domain.Upload{Filename: fh.Filename, Size: fh.Size, Content: f})
	}

	resp, err := h.usecase.Submit(r.Context(), identity(r.Context()), uploads, formParams(r.MultipartForm))
	if err != nil {
		logger.Error("Submit usecase", slog.Int("files", len(uploads)), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

func (h *handler) poll(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	snap, err := h.usecase.Poll(r.Context(), identity(r.Context()), jobID)
	if err != nil {
		requestLogger(r, "poll").Warn("Poll", slog.String("job_id", jobID), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) artifact(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "artifact")
	jobID, key := chi.URLParam(r, "id"), chi.URLParam(r, "key")

	result, err := h.usecase.Artifact(r.Context(), identity(r.Context()), jobID, key)
	if err != nil {
		logger.Warn("Artifact",
			slog.String("job_id", jobID),
			slog.String("item_key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	defer result.Content.Close()

	w.Header().Set("Content-Type", "model/gltf-binary")
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.FileName+`"`)
	if result.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(result.Size, 10))
	}

	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, result.Content); err != nil {
		logger.Error("artifact: send file",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

func (h *handler) forceFail(w http.ResponseWriter, r *http.Request) {
	jobID, key := chi.URLParam(r, "id"), chi.URLParam(r, "key")

	var req domain.ForceFailRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.usecase.ForceFail(r.Context(), identity(r.Context()), jobID, key, req.Reason); err != nil {
		requestLogger(r, "force_fail").Warn("ForceFail",
			slog.String("job_id", jobID),
			slog.String("item_key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) evict(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	if err := h.usecase.Evict(r.Context(), identity(r.Context()), jobID); err != nil {
		requestLogger(r, "evict").Warn("Evict", slog.String("job_id", jobID), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func requestLogger(r *http.Request, name string) *slog.Logger {
	return slog.With(
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("handler", name),
		slog.String("remote_addr", r.RemoteAddr),
	)
}

// formParams keeps the first value of every plain form field.
func formParams(form *multipart.Form) map[string]string {
	if len(form.Value) == 0 {
		return nil
	}
	params := make(map[string]string, len(form.Value))
	for k, v := range form.Value {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, core.ErrJobNotFound),
		errors.Is(err, core.ErrItemNotFound),
		errors.Is(err, domain.ErrNoArtifact):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidBatch):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrIllegalTransition),
		errors.Is(err, domain.ErrItemFailed):
		return http.StatusConflict
	case errors.Is(err, core.ErrNotReady):
		return http.StatusTooEarly
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = ""
	}
	writeMessage(w, status, message)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	resp := core.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON", slog.String("error", err.Error()))
	}
}
