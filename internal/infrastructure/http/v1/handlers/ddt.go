package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"commesse/internal/core/numerator"
	"commesse/internal/domain/generator"
	"commesse/internal/infrastructure/http/v1/dto"
)

// Issuer issues a document after applying the business duplicate rules.
type Issuer interface {
	Issue(ctx context.Context, folder string, class numerator.Class) (*generator.Result, error)
}

// Counter exposes previews and raw counter access.
type Counter interface {
	Generate(ctx context.Context, req generator.Request) (*generator.Result, error)
	Peek(ctx context.Context, class numerator.Class) (int, error)
	Advance(ctx context.Context, class numerator.Class) (int, error)
}

// DDTHandler serves delivery-note numbering and generation.
type DDTHandler struct {
	*BaseHandler
	issuer  Issuer
	counter Counter
}

// NewDDTHandler creates a DDT handler.
func NewDDTHandler(issuer Issuer, counter Counter) *DDTHandler {
	return &DDTHandler{
		BaseHandler: NewBaseHandler(),
		issuer:      issuer,
		counter:     counter,
	}
}

// Next previews the next document for a folder, or returns the stored counter without one.
// GET /api/v1/ddt/:class/next?folder=
func (h *DDTHandler) Next(c *gin.Context) {
	class, ok := h.Class(c)
	if !ok {
		return
	}
	var q dto.NextQuery
	if !h.BindQuery(c, &q) {
		return
	}

	if q.Folder == "" {
		n, err := h.counter.Peek(c.Request.Context(), class)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, dto.NewCounterResponse(class, n))
		return
	}

	res, err := h.counter.Generate(c.Request.Context(), generator.Request{Folder: q.Folder, Class: class})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromResult(class, res))
}

// Advance consumes a number without writing a document.
// POST /api/v1/ddt/:class/advance
func (h *DDTHandler) Advance(c *gin.Context) {
	class, ok := h.Class(c)
	if !ok {
		return
	}
	n, err := h.counter.Advance(c.Request.Context(), class)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewCounterResponse(class, n))
}

// Generate issues a document for the folder in the body.
// POST /api/v1/ddt/:class/generate
func (h *DDTHandler) Generate(c *gin.Context) {
	class, ok := h.Class(c)
	if !ok {
		return
	}
	var req dto.GenerateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.issuer.Issue(c.Request.Context(), req.Folder, class)
	if err != nil {
		h.Error(c, err)
		return
	}
	if res.Created {
		h.Created(c, dto.FromResult(class, res))
		return
	}
	h.OK(c, dto.FromResult(class, res))
}
