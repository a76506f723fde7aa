package appointment

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/booking-api/internal/handler"
	"github.com/jwalitptl/booking-api/internal/middleware"
	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/service/appointment"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/httputil"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the appointment routes on an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PUT("/:id", h.UpdateAppointment)
		appointments.PUT("/:id/assign", h.AssignClinician)
		appointments.PUT("/:id/cancel", h.CancelAppointment)
		appointments.PUT("/:id/complete", h.CompleteAppointment)
	}

	r.GET("/clients/:id/appointments", h.ListClientAppointments)
	r.GET("/clinicians/:id/appointments", h.ListClinicianAppointments)
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	apt, err := h.service.Create(c.Request.Context(), middleware.GetIdentity(c), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, apt)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	apt, err := h.service.Get(c.Request.Context(), middleware.GetIdentity(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	filters, err := parseFilters(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	p, err := handler.Pagination(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	page, err := h.service.List(c.Request.Context(), middleware.GetIdentity(c), filters, p)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.RespondWithPage(c, page, p)
}

func (h *Handler) ListClientAppointments(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	p, err := handler.Pagination(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	page, err := h.service.ListByClient(c.Request.Context(), middleware.GetIdentity(c), id, p)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.RespondWithPage(c, page, p)
}

func (h *Handler) ListClinicianAppointments(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	p, err := handler.Pagination(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	page, err := h.service.ListByClinician(c.Request.Context(), middleware.GetIdentity(c), id, p)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	handler.RespondWithPage(c, page, p)
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	apt, err := h.service.Update(c.Request.Context(), middleware.GetIdentity(c), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) AssignClinician(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req model.AssignClinicianRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	apt, err := h.service.Assign(c.Request.Context(), middleware.GetIdentity(c), id, req.ClinicianID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req model.CancelAppointmentRequest
	if c.Request.ContentLength != 0 && !handler.BindJSON(c, &req) {
		return
	}

	apt, err := h.service.Cancel(c.Request.Context(), middleware.GetIdentity(c), id, req.Reason)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func (h *Handler) CompleteAppointment(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req model.CompleteAppointmentRequest
	if c.Request.ContentLength != 0 && !handler.BindJSON(c, &req) {
		return
	}

	apt, err := h.service.Complete(c.Request.Context(), middleware.GetIdentity(c), id, req.Notes)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, apt)
}

func parseFilters(c *gin.Context) (model.AppointmentFilters, error) {
	var filters model.AppointmentFilters
	var err error

	if filters.ClientID, err = handler.QueryUUID(c, "client_id"); err != nil {
		return filters, err
	}
	if filters.ClinicianID, err = handler.QueryUUID(c, "clinician_id"); err != nil {
		return filters, err
	}
	if raw := c.Query("status"); raw != "" {
		status, err := model.ParseAppointmentStatus(raw)
		if err != nil {
			return filters, apperrors.BadRequest(err.Error(), err)
		}
		filters.Status = &status
	}
	for name, dst := range map[string]**model.Date{"from": &filters.From, "to": &filters.To} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		d, err := model.ParseDate(raw)
		if err != nil {
			return filters, apperrors.BadRequest(err.Error(), err)
		}
		*dst = &d
	}
	return filters, nil
}
