// Package handlers provides the HTTP request handlers of the deployer
// API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ocilxc/lxc-deployer/internal/apperr"
)

// respondError maps an application error kind onto an HTTP status.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperr.IsKind(err, apperr.KindNotFound):
		status = http.StatusNotFound
	case apperr.IsKind(err, apperr.KindConflict):
		status = http.StatusConflict
	case apperr.IsKind(err, apperr.KindValidation):
		status = http.StatusBadRequest
	case apperr.IsKind(err, apperr.KindConfiguration):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
