package dto

import (
	"commesse/internal/core/numerator"
	"commesse/internal/domain/generator"
	pkgnumerator "commesse/pkg/numerator"
)

// GenerateRequest selects the order folder for a manual issue.
type GenerateRequest struct {
	Folder string `json:"folder" binding:"required"`
}

// NextQuery is the optional folder of a preview.
type NextQuery struct {
	Folder string `form:"folder"`
}

// CounterResponse reports a raw counter value.
type CounterResponse struct {
	Class          string `json:"class"`
	Number         int    `json:"number"`
	DocumentNumber string `json:"documentNumber"`
}

// NewCounterResponse formats n for class.
func NewCounterResponse(class numerator.Class, n int) CounterResponse {
	return CounterResponse{
		Class:          class.String(),
		Number:         n,
		DocumentNumber: pkgnumerator.Format(class, n),
	}
}

// DocumentResponse is the outcome of a preview or an issue.
type DocumentResponse struct {
	OK             bool   `json:"ok"`
	Class          string `json:"class"`
	Number         int    `json:"number,omitempty"`
	DocumentNumber string `json:"documentNumber,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	FilePath       string `json:"filePath,omitempty"`
	Created        bool   `json:"created"`
	Preview        bool   `json:"preview,omitempty"`
	Note           string `json:"note,omitempty"`
}

// FromResult converts a generator result.
func FromResult(class numerator.Class, r *generator.Result) DocumentResponse {
	return DocumentResponse{
		OK:             r.OK,
		Class:          class.String(),
		Number:         r.Number,
		DocumentNumber: r.DocumentNumber,
		FileName:       r.FileName,
		FilePath:       r.FilePath,
		Created:        r.Created,
		Preview:        r.Preview,
		Note:           r.Note,
	}
}

// ArchiveRequest is sent when an order's archival flag changes.
type ArchiveRequest struct {
	Folder   string `json:"folder" binding:"required"`
	Archived bool   `json:"archived"`
	Previous bool   `json:"previous"`
}

// RegistryQuery filters the issued-document registry.
type RegistryQuery struct {
	Order string `form:"order"`
	Class string `form:"class"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}
