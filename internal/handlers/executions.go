package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ocilxc/lxc-deployer/internal/executor"
	"github.com/ocilxc/lxc-deployer/internal/models"
	"github.com/ocilxc/lxc-deployer/internal/services"
	"github.com/ocilxc/lxc-deployer/internal/store"
	"github.com/ocilxc/lxc-deployer/internal/system"
	"github.com/ocilxc/lxc-deployer/internal/validation"
)

// ExecutionHandler starts installs and serves the message streams and
// restart surface.
type ExecutionHandler struct {
	store     *store.Store
	executor  *executor.Executor
	stacks    *services.StackService
	audit     *services.AuditService
	inspector *system.Inspector
}

func NewExecutionHandler(st *store.Store, ex *executor.Executor, stacks *services.StackService, audit *services.AuditService, inspector *system.Inspector) *ExecutionHandler {
	return &ExecutionHandler{store: st, executor: ex, stacks: stacks, audit: audit, inspector: inspector}
}

// Install submits a configuration and starts the task asynchronously.
func (h *ExecutionHandler) Install(c *gin.Context) {
	app, err := h.store.Application(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var req models.InstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Task == "" {
		req.Task = models.TaskInstallation
	}
	if err := validation.ValidateTask(req.Task); err != nil {
		respondError(c, err)
		return
	}

	// A named stack fills secret markers in uploaded file content before
	// the values reach the executor.
	if req.StackID != "" {
		if err := h.fillStackMarkers(&req); err != nil {
			respondError(c, err)
			return
		}
	}

	if h.inspector != nil {
		memoryMB := numericParam(req.Params, "memory")
		diskGB := numericParam(req.Params, "disk")
		if err := h.inspector.CheckCapacity(c.Request.Context(), memoryMB, diskGB); err != nil {
			respondError(c, err)
			return
		}
	}

	resp, err := h.executor.Install(app, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Record("install.start", app.ID, map[string]any{"task": req.Task})
	c.JSON(http.StatusAccepted, resp)
}

// numericParam reads a numeric parameter value, accepting the number and
// string forms JSON clients send. Returns 0 when absent or malformed.
func numericParam(params []models.ParameterValue, id string) int64 {
	for _, p := range params {
		if p.ID != id {
			continue
		}
		switch v := p.Value.(type) {
		case float64:
			return int64(v)
		case string:
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func (h *ExecutionHandler) fillStackMarkers(req *models.InstallRequest) error {
	for i, p := range req.Params {
		content, ok := p.Value.(string)
		if !ok || content == "" || !strings.HasSuffix(p.ID, "_content") {
			continue
		}
		filled, err := h.stacks.FillMarkers(req.StackID, content)
		if err != nil {
			return err
		}
		req.Params[i].Value = filled
	}
	return nil
}

// ListGroups returns every execution group without its messages.
func (h *ExecutionHandler) ListGroups(c *gin.Context) {
	groups, err := h.executor.Log().Groups()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

// Restart retries the last failed step of an install.
func (h *ExecutionHandler) Restart(c *gin.Context) {
	var req models.RestartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.executor.Restart(req.RestartKey); err != nil {
		respondError(c, err)
		return
	}
	h.audit.Record("install.restart", "", nil)
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

// Reinstall tears the partial install down and reruns it under fresh
// keys.
func (h *ExecutionHandler) Reinstall(c *gin.Context) {
	var req models.ReinstallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.executor.Reinstall(req.VMInstallKey)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit.Record("install.reinstall", "", nil)
	c.JSON(http.StatusAccepted, resp)
}

// Messages polls the message stream of one execution group. ?after=N
// returns only messages with a higher index.
func (h *ExecutionHandler) Messages(c *gin.Context) {
	app := c.Param("id")
	task := c.Param("task")
	if err := validation.ValidateTask(task); err != nil {
		respondError(c, err)
		return
	}

	group, err := h.executor.Log().Group(app, task)
	if err != nil {
		respondError(c, err)
		return
	}

	if afterParam := c.Query("after"); afterParam != "" {
		after, err := strconv.Atoi(afterParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "after must be an integer"})
			return
		}
		group.Messages, err = h.executor.Log().Messages(app, task, after)
		if err != nil {
			respondError(c, err)
			return
		}
		if group.Messages == nil {
			group.Messages = []models.ExecuteMessage{}
		}
	}

	c.JSON(http.StatusOK, group)
}
