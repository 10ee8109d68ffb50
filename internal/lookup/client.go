// Package lookup runs single-flight parcel lookups against the backend and
// commits their outcome to the analysis state.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/catastro-tasador/internal/domain"
	"github.com/couchcryptid/catastro-tasador/internal/observability"
	"github.com/couchcryptid/catastro-tasador/internal/state"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Client gates lookups so at most one is in flight per AnalysisState.
type Client struct {
	backend domain.ParcelLookup
	state   *state.AnalysisState
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient wires a lookup client to its backend and state.
func NewClient(backend domain.ParcelLookup, st *state.AnalysisState, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		backend: backend,
		state:   st,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// Lookup resolves ref and replaces the current result on success. A call made
// while another lookup is in flight fails with domain.ErrConcurrentRequest and
// leaves the state untouched. On failure the state keeps its previous result
// and records the error for the view.
func (c *Client) Lookup(ctx context.Context, ref domain.Reference) (domain.AnalysisResult, error) {
	release, err := c.state.AcquireLookup()
	if err != nil {
		c.metrics.LookupsRejected.Inc()
		c.logger.Info("lookup refused, another lookup in flight", "ref", ref)
		return domain.AnalysisResult{}, err
	}
	defer release()

	c.metrics.LookupInFlight.Set(1)
	defer c.metrics.LookupInFlight.Set(0)

	start := c.clock.Now()
	result, err := c.backend.LookupParcel(ctx, ref)
	c.metrics.LookupDuration.Observe(c.clock.Since(start).Seconds())

	if err != nil {
		lookupErr := asLookupError(err)
		c.metrics.Lookups.WithLabelValues(lookupErr.Kind.String()).Inc()
		c.logger.Warn("lookup failed", "ref", ref, "kind", lookupErr.Kind.String(), "error", err)
		c.state.RecordError(lookupErr)
		return domain.AnalysisResult{}, lookupErr
	}

	result.Reference = ref
	result.ID = uuid.NewString()
	result.FetchedAt = c.clock.Now()

	if err := c.state.ReplaceResult(ref, result); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("commit lookup result: %w", err)
	}

	c.metrics.Lookups.WithLabelValues("success").Inc()
	c.logger.Info("lookup completed",
		"ref", ref,
		"analysis_id", result.ID,
		"affections", len(result.Affections),
	)
	return result, nil
}

// asLookupError keeps backend errors typed; anything untyped is treated as a
// transport failure.
func asLookupError(err error) *domain.LookupError {
	var lookupErr *domain.LookupError
	if errors.As(err, &lookupErr) {
		return lookupErr
	}
	return &domain.LookupError{Kind: domain.ConnectionFailed, Err: err}
}
