package server

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/vertextoedge/instagram-proxy/internal/port"
)

const maxLookupsLimit = 500

// DebugHandler handles debug endpoint requests
type DebugHandler struct {
	store  port.Store
	logger *zap.Logger
}

// NewDebugHandler creates a new DebugHandler. store may be nil.
func NewDebugHandler(store port.Store, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		store:  store,
		logger: logger,
	}
}

// HandleStats handles lookup statistics requests
func (h *DebugHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !h.historyEnabled(w) {
		return
	}

	stats, err := h.store.GetLookupStats(r.Context())
	if err != nil {
		h.logger.Error("failed to get lookup stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get lookup stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// HandleLookups lists the most recent lookups
func (h *DebugHandler) HandleLookups(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !h.historyEnabled(w) {
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxLookupsLimit)
	}

	lookups, err := h.store.RecentLookups(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list lookups", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list lookups")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(lookups),
		"lookups": lookups,
	})
}

func (h *DebugHandler) historyEnabled(w http.ResponseWriter) bool {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "Lookup history is disabled")
		return false
	}
	return true
}
