package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"scan-service/internal/domain/scan"
	"scan-service/internal/engine"
	"scan-service/internal/service"
)

type DeviceLister interface {
	ListDevices(ctx context.Context) ([]scan.CameraDevice, error)
}

type Handler struct {
	coordinator   *service.Coordinator
	feed          *engine.Feed
	devices       DeviceLister
	notifications *service.NotificationLog
	log           zerolog.Logger
}

func NewHandler(
	coordinator *service.Coordinator,
	feed *engine.Feed,
	devices DeviceLister,
	notifications *service.NotificationLog,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		coordinator:   coordinator,
		feed:          feed,
		devices:       devices,
		notifications: notifications,
		log:           log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/healthz", h.health)

	// Edge scanners push decode attempts here.
	public := r.Group("/api/v1")
	{
		public.POST("/devices/:id/attempts", h.pushAttempt)
	}

	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.GET("/devices", h.listDevices)
		protected.GET("/scanner", h.status)
		protected.POST("/scanner/start", h.start)
		protected.POST("/scanner/stop", h.stop)
		protected.POST("/scanner/resume", h.resume)
		protected.GET("/scanner/history", h.history)
		protected.DELETE("/scanner/history", h.clearHistory)
		protected.GET("/scanner/stats", h.stats)
		protected.GET("/notifications", h.listNotifications)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type attemptRequest struct {
	Payload string `json:"payload"`
	Format  string `json:"format"`
	Found   *bool  `json:"found"`
}

func (h *Handler) pushAttempt(c *gin.Context) {
	var req attemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	found := strings.TrimSpace(req.Payload) != ""
	if req.Found != nil {
		found = *req.Found
	}
	if found && strings.TrimSpace(req.Payload) == "" {
		h.handleError(c, fmt.Errorf("%w: payload is required when found is true", service.ErrInvalidInput))
		return
	}

	attempt := scan.NotFound
	if found {
		attempt = scan.Decoded(req.Payload, req.Format)
	}

	queued, err := h.feed.Push(c.Param("id"), attempt)
	if err != nil {
		h.handleError(c, err)
		return
	}

	status := "queued"
	if !queued {
		status = "dropped"
		h.log.Debug().Str("device_id", c.Param("id")).Msg("attempt queue full, dropping")
	}
	c.JSON(http.StatusAccepted, gin.H{"status": status})
}

func (h *Handler) listDevices(c *gin.Context) {
	devices, err := h.devices.ListDevices(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	preferred, _ := scan.PreferredDevice(devices)
	c.JSON(http.StatusOK, gin.H{
		"data":      devices,
		"preferred": preferred.ID,
	})
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.coordinator.Status()))
}

type startRequest struct {
	DeviceID string `json:"device_id"`
}

func (h *Handler) start(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
			return
		}
	}

	st, err := h.coordinator.StartWithDevice(c.Request.Context(), strings.TrimSpace(req.DeviceID))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(st))
}

func (h *Handler) stop(c *gin.Context) {
	h.coordinator.StopScanning()
	c.JSON(http.StatusOK, successResponse(h.coordinator.Status()))
}

func (h *Handler) resume(c *gin.Context) {
	if err := h.coordinator.ResumeManually(); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(h.coordinator.Status()))
}

func (h *Handler) history(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.coordinator.History()))
}

func (h *Handler) clearHistory(c *gin.Context) {
	h.coordinator.ClearHistory()
	c.Status(http.StatusNoContent)
}

func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.coordinator.Stats()))
}

func (h *Handler) listNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.notifications.Recent()))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound), errors.Is(err, engine.ErrUnknownDevice):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotActive),
		errors.Is(err, engine.ErrDeviceNotStreaming),
		errors.Is(err, engine.ErrNoCameraFound),
		errors.Is(err, engine.ErrCameraAccessDenied),
		errors.Is(err, engine.ErrAdapterBusy):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
