package domain

import (
	"context"
	"time"
)

// ParcelLookup resolves a cadastral reference against the analysis backend.
type ParcelLookup interface {
	// LookupParcel returns the analysis for ref. Failures are *LookupError.
	LookupParcel(ctx context.Context, ref Reference) (AnalysisResult, error)
}

// ReportRenderer turns a report request into a rendered PDF.
type ReportRenderer interface {
	// RenderReport returns the PDF bytes. Failures are *ExportError.
	RenderReport(ctx context.Context, req ReportRequest) ([]byte, error)
}

// Event types published after workflow transitions.
const (
	EventAnalysisCompleted = "analysis_completed"
	EventReportExported    = "report_exported"
)

// AnalysisEvent records a completed lookup or export for downstream consumers.
type AnalysisEvent struct {
	Type       string    `json:"type"`
	Reference  Reference `json:"ref"`
	AnalysisID string    `json:"analysis_id"`
	Affections int       `json:"affections"`
	File       string    `json:"file,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
