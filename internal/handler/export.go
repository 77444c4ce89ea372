package handler

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/prompting-realities/backend/internal/middleware"
	"github.com/prompting-realities/backend/internal/service"
	"github.com/prompting-realities/backend/pkg/logger"
)

// ExportHandler serves full-history exports to their owner.
type ExportHandler struct {
	exports *service.ExportService
	logger  *logger.Logger
}

// NewExportHandler creates a new export handler.
func NewExportHandler(exports *service.ExportService, log *logger.Logger) *ExportHandler {
	return &ExportHandler{exports: exports, logger: log}
}

// Export handles GET /api/v1/export. The default format is JSON;
// ?format=csv (or zip) streams a zip of CSV transcripts instead.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	export, err := h.exports.Build(r.Context(), userID)
	if err != nil {
		h.logger.Error("building export", zap.String("user_id", userID), zap.Error(err))
		writeServiceError(w, err)
		return
	}

	if format := r.URL.Query().Get("format"); format == "csv" || format == "zip" {
		filename := fmt.Sprintf("export-%s.zip", time.Now().UTC().Format("2006-01-02"))
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		if err := h.exports.WriteZip(w, export); err != nil {
			h.logger.Error("writing export zip", zap.String("user_id", userID), zap.Error(err))
		}
		return
	}

	writeJSON(w, http.StatusOK, export)
}
