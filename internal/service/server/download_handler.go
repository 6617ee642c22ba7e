package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/instagram-proxy/internal/domain"
	"github.com/vertextoedge/instagram-proxy/internal/logger"
	"github.com/vertextoedge/instagram-proxy/internal/service/proxy"
)

const (
	downloadEndpoint = "/api/download"
	maxBodyBytes     = 1 << 20
)

// statusResponse is the body of GET /
type statusResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Endpoint string `json:"endpoint"`
	Usage    string `json:"usage"`
}

// DownloadHandler handles the download API and the status descriptor
type DownloadHandler struct {
	downloader   Downloader
	metrics      *Metrics
	redactErrors bool
	logger       *zap.Logger
}

// NewDownloadHandler creates a new DownloadHandler
func NewDownloadHandler(downloader Downloader, metrics *Metrics, redactErrors bool, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		downloader:   downloader,
		metrics:      metrics,
		redactErrors: redactErrors,
		logger:       logger,
	}
}

// HandleRoot serves the static status descriptor
func (h *DownloadHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:   "ok",
		Message:  "Instagram Proxy Server is running 🚀",
		Endpoint: downloadEndpoint,
		Usage:    "POST { url: '<instagram_post_url>' }",
	})
}

// HandleDownload resolves the posted URL and relays the result
func (h *DownloadHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	log := logger.FromContext(r.Context(), h.logger)
	log.Info("received download request")
	start := time.Now()

	// A missing or malformed body counts as a missing URL
	var req domain.DownloadRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Debug("failed to decode request body", zap.Error(err))
		req = domain.DownloadRequest{}
	}

	result, err := h.downloader.Download(r.Context(), req)
	status := proxy.StatusCode(err)
	h.metrics.ObserveDownload(status, time.Since(start))

	if err != nil {
		if status >= http.StatusInternalServerError {
			log.Error("server error", zap.Error(err))
		}
		writeError(w, status, h.errorMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, domain.DownloadResponse{Response: result})
	log.Info("end of download request",
		zap.Int("media_count", len(result.URLList)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
}

// errorMessage returns the client-facing message for a download error
func (h *DownloadHandler) errorMessage(err error) string {
	if domain.IsUpstream(err) && h.redactErrors {
		return domain.FallbackMessage
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return domain.FallbackMessage
}
