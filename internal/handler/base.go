// Package handler holds helpers shared by the per-resource gin handlers.
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/booking-api/internal/model"
	apperrors "github.com/jwalitptl/booking-api/pkg/errors"
	"github.com/jwalitptl/booking-api/pkg/httputil"
)

// BindJSON binds the request body into req, responding with 400 on failure.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httputil.RespondWithError(c, httputil.BindingError(err))
		return false
	}
	return true
}

// ParamUUID parses a uuid path parameter, responding with 400 on failure.
func ParamUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

// QueryUUID parses an optional uuid query parameter.
func QueryUUID(c *gin.Context, name string) (*uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperrors.BadRequest("invalid "+name, err)
	}
	return &id, nil
}

// Pagination reads page and limit. Missing or out of range values fall back
// to the defaults; non-numeric values are rejected.
func Pagination(c *gin.Context) (model.Pagination, error) {
	var p model.Pagination
	for name, dst := range map[string]*int{"page": &p.Page, "limit": &p.Limit} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, apperrors.BadRequest("invalid "+name, err)
		}
		*dst = n
	}
	return p.Normalize(), nil
}

// RespondWithPage renders one page of results with its pagination block.
func RespondWithPage[T any](c *gin.Context, page *model.Page[T], p model.Pagination) {
	items := page.Items
	if items == nil {
		items = []T{}
	}
	httputil.RespondWithPagination(c, items, p.Page, p.Limit, page.Total)
}
