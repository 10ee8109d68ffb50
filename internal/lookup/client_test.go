package lookup_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/catastro-tasador/internal/domain"
	"github.com/couchcryptid/catastro-tasador/internal/lookup"
	"github.com/couchcryptid/catastro-tasador/internal/observability"
	"github.com/couchcryptid/catastro-tasador/internal/state"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRef = domain.Reference("9872023 VH5797S 0001 WX")

var fixedNow = time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)

// --- mocks ---

type fakeBackend struct {
	calls   atomic.Int32
	result  domain.AnalysisResult
	err     error
	block   chan struct{} // when set, LookupParcel waits until closed
	started chan struct{}
	panics  bool
}

func (f *fakeBackend) LookupParcel(_ context.Context, ref domain.Reference) (domain.AnalysisResult, error) {
	f.calls.Add(1)
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	if f.panics {
		panic("backend exploded")
	}
	if f.err != nil {
		return domain.AnalysisResult{}, f.err
	}
	res := f.result
	res.Reference = ref
	return res, nil
}

func successResult() domain.AnalysisResult {
	return domain.AnalysisResult{
		Geometry:   json.RawMessage(`{"type":"Point","coordinates":[-3.7,40.4]}`),
		Affections: []domain.Affection{{Capa: "PNOA", Nota: "Zona inundable"}},
		RawData:    json.RawMessage(`{"zonas_afectadas":[{"capa":"PNOA","nota":"Zona inundable"}]}`),
	}
}

func newTestClient(backend domain.ParcelLookup) (*lookup.Client, *state.AnalysisState, *observability.Metrics) {
	st := state.New()
	metrics := observability.NewMetricsForTesting()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return lookup.NewClient(backend, st, clockwork.NewFakeClockAt(fixedNow), metrics, logger), st, metrics
}

// --- tests ---

func TestLookup_Success(t *testing.T) {
	backend := &fakeBackend{result: successResult()}
	c, st, metrics := newTestClient(backend)

	result, err := c.Lookup(context.Background(), testRef)
	require.NoError(t, err)

	assert.Equal(t, testRef, result.Reference)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, fixedNow, result.FetchedAt)

	snap := st.Snapshot()
	require.True(t, snap.HasResult())
	assert.Equal(t, testRef, snap.Reference)
	assert.Equal(t, snap.Reference, snap.Result.Reference)
	assert.Equal(t, result.ID, snap.Result.ID)
	assert.False(t, snap.RequestInFlight)
	assert.Equal(t, domain.PhaseReady, snap.Phase)
	assert.NoError(t, snap.Err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Lookups.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.LookupInFlight))
}

func TestLookup_ConnectionFailedLeavesStateUnchanged(t *testing.T) {
	good := &fakeBackend{result: successResult()}
	c, st, _ := newTestClient(good)
	_, err := c.Lookup(context.Background(), testRef)
	require.NoError(t, err)
	before := st.Snapshot()

	good.err = &domain.LookupError{Kind: domain.ConnectionFailed, Err: errors.New("dial tcp: connection refused")}
	_, err = c.Lookup(context.Background(), "1234567AB1234C0001DE")

	var lookupErr *domain.LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, domain.ConnectionFailed, lookupErr.Kind)

	after := st.Snapshot()
	assert.False(t, after.RequestInFlight)
	assert.Equal(t, before.Reference, after.Reference)
	assert.Equal(t, before.Result, after.Result)
	assert.Equal(t, domain.PhaseReady, after.Phase)
	require.Error(t, after.Err)
	assert.Equal(t, "Error conectando con el servidor", domain.UserMessage(after.Err))
}

func TestLookup_FailureFromIdleStaysIdle(t *testing.T) {
	backend := &fakeBackend{err: &domain.LookupError{Kind: domain.ServerRejected, Message: "Referencia no encontrada"}}
	c, st, metrics := newTestClient(backend)

	_, err := c.Lookup(context.Background(), testRef)
	require.Error(t, err)

	snap := st.Snapshot()
	assert.False(t, snap.HasResult())
	assert.Empty(t, snap.Reference)
	assert.Equal(t, domain.PhaseIdle, snap.Phase)
	assert.Equal(t, "Error: Referencia no encontrada", domain.UserMessage(snap.Err))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Lookups.WithLabelValues("server_rejected")))
}

func TestLookup_UntypedErrorBecomesConnectionFailed(t *testing.T) {
	backend := &fakeBackend{err: context.DeadlineExceeded}
	c, _, _ := newTestClient(backend)

	_, err := c.Lookup(context.Background(), testRef)
	var lookupErr *domain.LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, domain.ConnectionFailed, lookupErr.Kind)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLookup_ConcurrentCallRejected(t *testing.T) {
	backend := &fakeBackend{
		result:  successResult(),
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	c, st, metrics := newTestClient(backend)

	done := make(chan error, 1)
	go func() {
		_, err := c.Lookup(context.Background(), testRef)
		done <- err
	}()
	<-backend.started

	inFlight := st.Snapshot()
	require.True(t, inFlight.RequestInFlight)

	_, err := c.Lookup(context.Background(), "1234567AB1234C0001DE")
	require.ErrorIs(t, err, domain.ErrConcurrentRequest)
	assert.Equal(t, inFlight.Version, st.Snapshot().Version, "rejected lookup must not alter state")
	assert.Equal(t, int32(1), backend.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LookupsRejected))

	close(backend.block)
	require.NoError(t, <-done)
	assert.False(t, st.Snapshot().RequestInFlight)
	assert.Equal(t, testRef, st.Snapshot().Reference)
}

func TestLookup_PanicReleasesGate(t *testing.T) {
	backend := &fakeBackend{panics: true}
	c, st, _ := newTestClient(backend)

	assert.Panics(t, func() {
		_, _ = c.Lookup(context.Background(), testRef)
	})
	assert.False(t, st.Snapshot().RequestInFlight)

	backend.panics = false
	backend.result = successResult()
	_, err := c.Lookup(context.Background(), testRef)
	require.NoError(t, err)
}
