package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ocilxc/lxc-deployer/internal/services"
	"github.com/ocilxc/lxc-deployer/internal/system"
)

// SystemHandler serves host state and the audit log.
type SystemHandler struct {
	inspector *system.Inspector
	audit     *services.AuditService
}

func NewSystemHandler(inspector *system.Inspector, audit *services.AuditService) *SystemHandler {
	return &SystemHandler{inspector: inspector, audit: audit}
}

// Info returns the host snapshot.
func (h *SystemHandler) Info(c *gin.Context) {
	info, err := h.inspector.Info(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Preflight returns the warnings an install would start under.
func (h *SystemHandler) Preflight(c *gin.Context) {
	warnings, err := h.inspector.Preflight(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if warnings == nil {
		warnings = []system.PreflightWarning{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": len(warnings) == 0, "warnings": warnings})
}

// AuditLogs returns recorded actions, newest first.
func (h *SystemHandler) AuditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	logs, err := h.audit.Logs(c.Query("application"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
