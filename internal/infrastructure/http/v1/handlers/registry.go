package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"commesse/internal/core/apperror"
	"commesse/internal/core/numerator"
	"commesse/internal/infrastructure/http/v1/dto"
	"commesse/internal/infrastructure/storage/postgres"
)

const defaultRegistryLimit = 100

// RegistryLister lists issued documents.
type RegistryLister interface {
	List(ctx context.Context, f postgres.RegistryFilter) ([]postgres.Entry, error)
}

// RegistryHandler serves the issued-document registry.
type RegistryHandler struct {
	*BaseHandler
	registry RegistryLister
}

// NewRegistryHandler creates a registry handler. registry is nil when no database is configured.
func NewRegistryHandler(registry RegistryLister) *RegistryHandler {
	return &RegistryHandler{BaseHandler: NewBaseHandler(), registry: registry}
}

// List returns registry rows, newest first.
// GET /api/v1/ddt/registry?order=&class=&limit=
func (h *RegistryHandler) List(c *gin.Context) {
	if h.registry == nil {
		err := apperror.NewConfigurationMissing("DATABASE_URL")
		err.HTTPStatus = http.StatusNotFound
		h.Error(c, err)
		return
	}

	var q dto.RegistryQuery
	if !h.BindQuery(c, &q) {
		return
	}
	filter := postgres.RegistryFilter{OrderCode: q.Order, Limit: defaultRegistryLimit}
	if q.Limit > 0 {
		filter.Limit = uint64(q.Limit)
	}
	if q.Class != "" {
		class, err := numerator.ParseClass(q.Class)
		if err != nil {
			h.Error(c, apperror.NewInvalidInput(err.Error()))
			return
		}
		filter.Class = class
	}

	entries, err := h.registry.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	h.OK(c, dto.NewListResponse(entries, int(filter.Limit)))
}
