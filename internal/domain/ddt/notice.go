package ddt

import (
	"time"

	"commesse/internal/core/id"
	"commesse/internal/core/numerator"
)

// Notice describes a freshly issued document for the register and other listeners.
type Notice struct {
	ID             id.ID
	Class          numerator.Class
	Number         int
	DocumentNumber string // "0007W"
	OrderCode      string
	Date           time.Time
	Quantity       string
	Packages       int
	Outbound       OutboundRef
	Folder         string
	FilePath       string
	Fields         map[string]string
	IssuedAt       time.Time
}
