package handlers

import (
	"github.com/gin-gonic/gin"

	"commesse/internal/domain/generator"
	"commesse/internal/infrastructure/http/v1/dto"
)

// ArchiveTrigger schedules an automatic inbound note for an archived folder.
type ArchiveTrigger interface {
	Archived(folder string) bool
}

// ArchiveHandler receives order status changes.
type ArchiveHandler struct {
	*BaseHandler
	trigger ArchiveTrigger
}

// NewArchiveHandler creates an archive handler.
func NewArchiveHandler(trigger ArchiveTrigger) *ArchiveHandler {
	return &ArchiveHandler{BaseHandler: NewBaseHandler(), trigger: trigger}
}

// Archive fires the debounced trigger on a false to true transition only.
// The document is issued later, so the response is always 202.
// POST /api/v1/commesse/archive
func (h *ArchiveHandler) Archive(c *gin.Context) {
	var req dto.ArchiveRequest
	if !h.BindJSON(c, &req) {
		return
	}
	folder, err := generator.ResolveFolder(req.Folder)
	if err != nil {
		h.Error(c, err)
		return
	}

	if !req.Archived || req.Previous {
		h.Accepted(c, dto.AcceptedResponse{Accepted: false, Message: "no archival transition"})
		return
	}
	if !h.trigger.Archived(folder) {
		h.Accepted(c, dto.AcceptedResponse{Accepted: false, Message: "trigger stopped"})
		return
	}
	h.Accepted(c, dto.AcceptedResponse{Accepted: true, Message: "inbound delivery note scheduled"})
}
