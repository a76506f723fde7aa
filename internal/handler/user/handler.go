package user

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/booking-api/internal/handler"
	"github.com/jwalitptl/booking-api/internal/middleware"
	"github.com/jwalitptl/booking-api/internal/model"
	"github.com/jwalitptl/booking-api/internal/service/user"
	"github.com/jwalitptl/booking-api/pkg/httputil"
)

type Handler struct {
	service *user.Service
}

func NewHandler(service *user.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("/:id", h.GetUser)
		users.PUT("/:id/role", h.ChangeRole)
		users.PUT("/:id/activate", h.Activate)
		users.PUT("/:id/deactivate", h.Deactivate)
		users.PUT("/:id/verify", h.Verify)
	}
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	actor, err := h.service.Get(c.Request.Context(), middleware.GetIdentity(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, actor)
}

func (h *Handler) ChangeRole(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}
	var req model.ChangeRoleRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	actor, err := h.service.SetRole(c.Request.Context(), middleware.GetIdentity(c), id, req.Role)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, actor)
}

func (h *Handler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *Handler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *Handler) setActive(c *gin.Context, active bool) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	actor, err := h.service.SetActive(c.Request.Context(), middleware.GetIdentity(c), id, active)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, actor)
}

func (h *Handler) Verify(c *gin.Context) {
	id, ok := handler.ParamUUID(c, "id")
	if !ok {
		return
	}

	actor, err := h.service.Verify(c.Request.Context(), middleware.GetIdentity(c), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, actor)
}
