// Package httpapi exposes the alert API, health, metrics and static
// evidence over HTTP.
package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"invigilens/internal/alerts"
)

type alertHandler struct {
	svc    *alerts.Service
	logger *slog.Logger
}

// RegisterAlerts mounts the alert routes under /api/alerts.
func RegisterAlerts(r gin.IRouter, svc *alerts.Service, logger *slog.Logger) {
	h := &alertHandler{svc: svc, logger: logger}
	g := r.Group("/api/alerts")
	g.POST("", h.create)
	g.GET("", h.list)
	g.PUT("/:id", h.update)
	g.DELETE("", h.deleteAll)
}

func (h *alertHandler) create(c *gin.Context) {
	var req alerts.NewAlert
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid alert body: " + err.Error()})
		return
	}
	a, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err, "failed to create alert")
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *alertHandler) list(c *gin.Context) {
	f := alerts.Filter{Status: alerts.Status(c.Query("status"))}
	res, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err, "failed to list alerts")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *alertHandler) update(c *gin.Context) {
	var req struct {
		Status *alerts.Status `json:"status"`
	}
	// An empty body means "no change", same as an omitted status.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid status body: " + err.Error()})
		return
	}
	if req.Status != nil && *req.Status == "" {
		req.Status = nil
	}
	a, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		h.fail(c, err, "failed to update alert")
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *alertHandler) deleteAll(c *gin.Context) {
	n, err := h.svc.DeleteAll(c.Request.Context())
	if err != nil {
		h.fail(c, err, "failed to clear alerts")
		return
	}
	h.logger.Info("alert history cleared", "deleted", n)
	c.JSON(http.StatusOK, gin.H{"message": "All alerts cleared", "deleted": n})
}

// fail maps service errors to status codes. Store failures are logged and
// answered with a fixed message so internal detail never leaves the server.
func (h *alertHandler) fail(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, alerts.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, alerts.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Alert not found"})
	default:
		h.logger.Error(fallback, "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": fallback})
	}
}
