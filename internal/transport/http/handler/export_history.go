package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sysdesign-ai/internal/model"
	"sysdesign-ai/internal/transport/http/response"
)

type ExportLister interface {
	ListBySessionID(sessionID string) ([]model.PlanExport, error)
	ListRecent(limit int) ([]model.PlanExport, error)
}

// ExportHistoryHandler serves the archive of past workbook downloads.
type ExportHistoryHandler struct {
	exports ExportLister
}

func NewExportHistoryHandler(exports ExportLister) *ExportHistoryHandler {
	return &ExportHistoryHandler{exports: exports}
}

func (h *ExportHistoryHandler) ListSessionExports(c *gin.Context) {
	sessionID, ok := requireSessionID(c)
	if !ok {
		return
	}
	exports, err := h.exports.ListBySessionID(sessionID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list exports failed")
		return
	}
	response.OK(c, exports)
}

func (h *ExportHistoryHandler) ListRecent(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	if limit > 100 {
		limit = 100
	}

	exports, err := h.exports.ListRecent(limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list exports failed")
		return
	}
	response.OK(c, exports)
}
