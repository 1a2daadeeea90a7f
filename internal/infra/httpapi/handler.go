package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fiapx/fiapx-highlight-service/internal/domain/entity"
	"github.com/fiapx/fiapx-highlight-service/internal/usecase"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const multipartMemory = 32 << 20

// Summarizer runs the highlight pipeline for an uploaded video.
type Summarizer interface {
	Execute(ctx context.Context, req usecase.SummarizeRequest) (*entity.SummaryRun, error)
}

type Handler struct {
	summarizer Summarizer
	uploadDir  string
	outputDir  string
	maxUpload  int64
	logger     *zap.Logger
}

type HandlerConfig struct {
	UploadDir      string
	OutputDir      string
	MaxUploadBytes int64
}

func NewHandler(summarizer Summarizer, logger *zap.Logger, cfg HandlerConfig) *Handler {
	return &Handler{
		summarizer: summarizer,
		uploadDir:  cfg.UploadDir,
		outputDir:  cfg.OutputDir,
		maxUpload:  cfg.MaxUploadBytes,
		logger:     logger,
	}
}

type processResponse struct {
	Message    string `json:"message"`
	TrailerURL string `json:"trailer_url,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ProcessVideo accepts a multipart upload in field "video" and returns the
// summary URL once the pipeline finishes.
func (h *Handler) ProcessVideo(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Video file too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No video file uploaded"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("video")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No video file uploaded"})
		return
	}
	defer file.Close()

	filename := SanitizeFilename(header.Filename)
	if filename == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No selected file"})
		return
	}

	log := h.logger.With(zap.String("filename", filename))

	videoPath, err := h.saveUpload(file, filename)
	if err != nil {
		log.Error("failed to save upload", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: string(entity.ErrorKindInternal), Message: "could not store upload"})
		return
	}
	defer os.Remove(videoPath)

	run, err := h.summarizer.Execute(r.Context(), usecase.SummarizeRequest{Filename: filename, VideoPath: videoPath})
	if err != nil {
		var runErr *entity.RunError
		if !errors.As(err, &runErr) {
			runErr = &entity.RunError{Kind: entity.ErrorKindInternal, Message: err.Error(), Err: err}
		}
		writeJSON(w, statusForKind(runErr.Kind), errorResponse{Error: string(runErr.Kind), Message: runErr.Message})
		return
	}

	if run.State == entity.RunStateAlreadyProcessed {
		writeJSON(w, http.StatusConflict, processResponse{
			Message:    "Video has already been processed",
			TrailerURL: run.SummaryURL,
		})
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		Message:    "Video processed successfully",
		TrailerURL: run.SummaryURL,
	})
}

func (h *Handler) saveUpload(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(h.uploadDir, uuid.NewString()+"-"+filename)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	return path, dst.Close()
}

// Output serves a finished summary from the output directory.
func (h *Handler) Output(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.outputDir, name))
}

func statusForKind(kind entity.ErrorKind) int {
	switch kind {
	case entity.ErrorKindDecode:
		return http.StatusUnprocessableEntity
	case entity.ErrorKindTimeout:
		return http.StatusGatewayTimeout
	case entity.ErrorKindCancelled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename reduces a client-supplied name to a safe base name made of
// letters, digits, dot, underscore and dash.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = name[strings.LastIndex(name, "/")+1:]
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.TrimLeft(name, "._")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
