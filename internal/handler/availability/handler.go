package availability

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/booking-api/internal/handler"
	"github.com/jwalitptl/booking-api/internal/middleware"
	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/service/availability"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/httputil"
)

type Handler struct {
	service *availability.Service
}

func NewHandler(service *availability.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	clinicians := r.Group("/clinicians/:id/availability")
	{
		clinicians.GET("", h.ListWindows)
		clinicians.PUT("", h.SetWindow)
		clinicians.GET("/check", h.CheckSlot)
	}
}

func (h *Handler) ListWindows(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	windows, err := h.service.ListWindows(c.Request.Context(), middleware.GetIdentity(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if windows == nil {
		windows = []*model.AvailabilityWindow{}
	}
	httputil.RespondWithSuccess(c, windows)
}

func (h *Handler) SetWindow(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req model.SetAvailabilityRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	window, err := h.service.SetWindow(c.Request.Context(), middleware.GetIdentity(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, window)
}

func (h *Handler) CheckSlot(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	date, at := c.Query("date"), c.Query("time")
	if date == "" || at == "" {
		httputil.RespondWithError(c, apperrors.BadRequest("date and time are required", nil))
		return
	}

	status, err := h.service.CheckSlot(c.Request.Context(), middleware.GetIdentity(c), id, date, at)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, status)
}
