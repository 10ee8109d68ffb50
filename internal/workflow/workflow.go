// Package workflow drives one dashboard session: reference submission, logo
// attachment, and report export, in that order of the state machine.
package workflow

import (
	"context"
	"io"
	"log/slog"

	"github.com/couchcryptid/catastro-tasador/internal/asset"
	"github.com/couchcryptid/catastro-tasador/internal/domain"
	"github.com/couchcryptid/catastro-tasador/internal/lookup"
	"github.com/couchcryptid/catastro-tasador/internal/observability"
	"github.com/couchcryptid/catastro-tasador/internal/report"
	"github.com/couchcryptid/catastro-tasador/internal/state"
	"github.com/jonboulle/clockwork"
)

// Publisher delivers analysis events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event domain.AnalysisEvent) error
}

// Workflow composes the session components. All errors it returns are typed
// domain errors suitable for domain.UserMessage.
type Workflow struct {
	state     *state.AnalysisState
	lookup    *lookup.Client
	composer  *report.Composer
	ingester  *asset.Ingester
	publisher Publisher
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Option configures optional workflow collaborators.
type Option func(*Workflow)

// WithPublisher publishes an event after each completed lookup and export.
func WithPublisher(p Publisher) Option {
	return func(w *Workflow) { w.publisher = p }
}

// New creates a workflow over st.
func New(
	st *state.AnalysisState,
	lookupClient *lookup.Client,
	composer *report.Composer,
	ingester *asset.Ingester,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	logger *slog.Logger,
	opts ...Option,
) *Workflow {
	w := &Workflow{
		state:    st,
		lookup:   lookupClient,
		composer: composer,
		ingester: ingester,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Snapshot returns the current session state.
func (w *Workflow) Snapshot() state.Snapshot {
	return w.state.Snapshot()
}

// Submit normalizes and validates raw, then looks it up. Invalid references
// fail locally without touching the state or the backend.
func (w *Workflow) Submit(ctx context.Context, raw string) (domain.AnalysisResult, error) {
	ref, err := domain.ParseReference(raw)
	if err != nil {
		w.logger.Info("reference rejected", "input", raw, "error", err)
		return domain.AnalysisResult{}, err
	}

	result, err := w.lookup.Lookup(ctx, ref)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	w.publish(ctx, domain.AnalysisEvent{
		Type:       domain.EventAnalysisCompleted,
		Reference:  result.Reference,
		AnalysisID: result.ID,
		Affections: len(result.Affections),
		OccurredAt: w.clock.Now(),
	})
	return result, nil
}

// Export builds a report request from the current analysis and form, renders
// it, and saves the PDF.
func (w *Workflow) Export(ctx context.Context, form report.Form) (domain.FileHandle, error) {
	req, err := w.composer.BuildRequest(form)
	if err != nil {
		w.logger.Info("report refused", "error", err)
		return domain.FileHandle{}, err
	}

	handle, err := w.composer.Export(ctx, req)
	if err != nil {
		return domain.FileHandle{}, err
	}

	w.publish(ctx, domain.AnalysisEvent{
		Type:       domain.EventReportExported,
		Reference:  req.Reference,
		AnalysisID: req.AnalysisID,
		File:       handle.Name,
		OccurredAt: w.clock.Now(),
	})
	return handle, nil
}

// AttachLogo ingests r as the report logo.
func (w *Workflow) AttachLogo(ctx context.Context, r io.Reader) (domain.EmbeddedImage, error) {
	return w.ingester.Ingest(ctx, r)
}

// AttachLogoFile ingests the file at path as the report logo.
func (w *Workflow) AttachLogoFile(ctx context.Context, path string) (domain.EmbeddedImage, error) {
	return w.ingester.IngestFile(ctx, path)
}

// publish is best effort: a failed event never fails the user's operation.
func (w *Workflow) publish(ctx context.Context, event domain.AnalysisEvent) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.Publish(ctx, event); err != nil {
		w.metrics.EventsPublished.WithLabelValues(event.Type, "error").Inc()
		w.logger.Warn("publish event failed", "type", event.Type, "ref", event.Reference, "error", err)
		return
	}
	w.metrics.EventsPublished.WithLabelValues(event.Type, "success").Inc()
}
