package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ocilxc/lxc-deployer/internal/models"
	"github.com/ocilxc/lxc-deployer/internal/services"
)

// StackHandler manages named secret stacks. Responses never carry values,
// only keys.
type StackHandler struct {
	stacks *services.StackService
	audit  *services.AuditService
}

func NewStackHandler(stacks *services.StackService, audit *services.AuditService) *StackHandler {
	return &StackHandler{stacks: stacks, audit: audit}
}

func (h *StackHandler) List(c *gin.Context) {
	stacks, err := h.stacks.List()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stacks)
}

func (h *StackHandler) Get(c *gin.Context) {
	stack, err := h.stacks.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stack)
}

func (h *StackHandler) Create(c *gin.Context) {
	var req models.CreateStackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stack, err := h.stacks.Create(&req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit.Record("stack.create", "", map[string]any{"stack": stack.Name})
	c.JSON(http.StatusCreated, stack)
}

func (h *StackHandler) Update(c *gin.Context) {
	var req struct {
		Entries map[string]string `json:"entries" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stack, err := h.stacks.Update(c.Param("id"), req.Entries)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit.Record("stack.update", "", map[string]any{"stack": stack.Name})
	c.JSON(http.StatusOK, stack)
}

func (h *StackHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.stacks.Delete(id); err != nil {
		respondError(c, err)
		return
	}
	h.audit.Record("stack.delete", "", map[string]any{"stack": id})
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
