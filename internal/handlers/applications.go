package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ocilxc/lxc-deployer/internal/graph"
	"github.com/ocilxc/lxc-deployer/internal/models"
	"github.com/ocilxc/lxc-deployer/internal/services"
	"github.com/ocilxc/lxc-deployer/internal/store"
	"github.com/ocilxc/lxc-deployer/internal/synth"
)

// ApplicationHandler serves the catalog: frameworks, applications, addons,
// synthesis, and parameter resolution.
type ApplicationHandler struct {
	store   *store.Store
	synth   *synth.Synthesizer
	builder *graph.Builder
	audit   *services.AuditService
}

func NewApplicationHandler(st *store.Store, sy *synth.Synthesizer, builder *graph.Builder, audit *services.AuditService) *ApplicationHandler {
	return &ApplicationHandler{store: st, synth: sy, builder: builder, audit: audit}
}

// ListFrameworks returns every installable framework.
func (h *ApplicationHandler) ListFrameworks(c *gin.Context) {
	frameworks, err := h.store.ListFrameworks()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, frameworks)
}

// ListAddons returns every addon.
func (h *ApplicationHandler) ListAddons(c *gin.Context) {
	addons, err := h.store.ListAddons()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, addons)
}

// List returns every application across both store layers.
func (h *ApplicationHandler) List(c *gin.Context) {
	apps, err := h.store.ListApplications()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, apps)
}

// Get returns one application definition.
func (h *ApplicationHandler) Get(c *gin.Context) {
	app, err := h.store.Application(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// Create synthesizes a new application from a framework and persists it.
func (h *ApplicationHandler) Create(c *gin.Context) {
	var req models.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.synth.CreateApplication(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.audit.Record("application.create", id, map[string]any{"framework": req.FrameworkID})
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// Delete removes an application from the writable layer.
func (h *ApplicationHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.DeleteApplication(id); err != nil {
		respondError(c, err)
		return
	}
	h.audit.Record("application.delete", id, nil)
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// Preview synthesizes a draft without persisting it and resolves its
// parameter surface, so a client can show the remaining inputs before
// creation.
func (h *ApplicationHandler) Preview(c *gin.Context) {
	var req models.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	draft, err := h.synth.BuildDraft(&models.CreateApplicationRequest{
		FrameworkID:     req.FrameworkID,
		ApplicationID:   req.ApplicationID,
		Name:            req.ApplicationID,
		ParameterValues: req.ParameterValues,
		UploadFiles:     req.UploadFiles,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.builder.Resolve(c.Request.Context(), &graph.Request{
		App:            draft.Application,
		Task:           models.TaskInstallation,
		Context:        graph.ContextCreate,
		Values:         req.ParameterValues,
		UploadFiles:    req.UploadFiles,
		DraftTemplates: draft.Templates,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"parameters":     res.Parameters,
		"unresolved":     res.Unresolved,
		"templateTrace":  res.TemplateTrace,
		"parameterTrace": res.ParameterTrace,
	})
}

// Params returns the install-time parameter surface of a persisted
// application for a task. flat=true strips the advanced grouping.
func (h *ApplicationHandler) Params(c *gin.Context) {
	app, err := h.store.Application(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	task := c.DefaultQuery("task", models.TaskInstallation)
	flat, _ := strconv.ParseBool(c.Query("flat"))

	res, err := h.builder.Resolve(c.Request.Context(), &graph.Request{
		App:     app,
		Task:    task,
		Context: graph.ContextInstall,
		Addons:  c.QueryArray("addon"),
		Flat:    flat,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"parameters":      res.Parameters,
		"unresolved":      res.Unresolved,
		"missingRequired": res.MissingRequired,
		"templateTrace":   res.TemplateTrace,
		"parameterTrace":  res.ParameterTrace,
	})
}
