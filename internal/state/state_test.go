package state

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/couchcryptid/catastro-tasador/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRef = domain.Reference("9872023VH5797S0001WX")

func testResult(ref domain.Reference) domain.AnalysisResult {
	return domain.AnalysisResult{
		ID:         "analysis-1",
		Reference:  ref,
		Geometry:   json.RawMessage(`{"type":"Point","coordinates":[-3.7,40.4]}`),
		Affections: []domain.Affection{{Capa: "PNOA", Nota: "Zona inundable"}},
		RawData:    json.RawMessage(`{"zonas_afectadas":[{"capa":"PNOA","nota":"Zona inundable"}]}`),
	}
}

func TestNew_Empty(t *testing.T) {
	snap := New().Snapshot()

	assert.Empty(t, snap.Reference)
	assert.False(t, snap.HasResult())
	assert.Empty(t, snap.Logo)
	assert.False(t, snap.RequestInFlight)
	assert.Equal(t, domain.PhaseIdle, snap.Phase)
	assert.NoError(t, snap.Err)
}

func TestReplaceResult_KeepsReferenceAndResultTogether(t *testing.T) {
	s := New()
	require.NoError(t, s.ReplaceResult(testRef, testResult(testRef)))

	snap := s.Snapshot()
	require.True(t, snap.HasResult())
	assert.Equal(t, snap.Reference, snap.Result.Reference)
	assert.Equal(t, domain.PhaseReady, snap.Phase)

	other := domain.Reference("1234567AB1234C0001DE")
	require.NoError(t, s.ReplaceResult(other, testResult(other)))
	snap = s.Snapshot()
	assert.Equal(t, other, snap.Reference)
	assert.Equal(t, other, snap.Result.Reference)
}

func TestReplaceResult_RejectsMismatch(t *testing.T) {
	s := New()
	require.NoError(t, s.ReplaceResult(testRef, testResult(testRef)))
	before := s.Snapshot()

	err := s.ReplaceResult("1234567AB1234C0001DE", testResult(testRef))
	require.Error(t, err)

	after := s.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, testRef, after.Reference)
}

func TestReplaceResult_ClearsError(t *testing.T) {
	s := New()
	s.RecordError(&domain.LookupError{Kind: domain.ConnectionFailed})
	require.Error(t, s.Snapshot().Err)

	require.NoError(t, s.ReplaceResult(testRef, testResult(testRef)))
	assert.NoError(t, s.Snapshot().Err)
}

func TestSetLogo_Independent(t *testing.T) {
	s := New()
	s.SetLogo("data:image/png;base64,AAAA")
	assert.False(t, s.Snapshot().HasResult())

	require.NoError(t, s.ReplaceResult(testRef, testResult(testRef)))
	assert.Equal(t, domain.EmbeddedImage("data:image/png;base64,AAAA"), s.Snapshot().Logo)

	s.SetLogo("data:image/png;base64,BBBB")
	snap := s.Snapshot()
	assert.Equal(t, domain.EmbeddedImage("data:image/png;base64,BBBB"), snap.Logo)
	assert.Equal(t, testRef, snap.Result.Reference)
}

func TestSnapshot_IsImmutable(t *testing.T) {
	s := New()
	require.NoError(t, s.ReplaceResult(testRef, testResult(testRef)))

	snap := s.Snapshot()
	snap.Result.Affections[0].Nota = "mutated"
	snap.Result.Geometry[0] = '['

	fresh := s.Snapshot()
	assert.Equal(t, "Zona inundable", fresh.Result.Affections[0].Nota)
	assert.Equal(t, byte('{'), fresh.Result.Geometry[0])
}

func TestReplaceResult_CopiesInput(t *testing.T) {
	s := New()
	res := testResult(testRef)
	require.NoError(t, s.ReplaceResult(testRef, res))

	res.Affections[0].Capa = "mutated"
	assert.Equal(t, "PNOA", s.Snapshot().Result.Affections[0].Capa)
}

func TestAcquireLookup_SingleFlight(t *testing.T) {
	s := New()

	release, err := s.AcquireLookup()
	require.NoError(t, err)
	snap := s.Snapshot()
	assert.True(t, snap.RequestInFlight)
	assert.Equal(t, domain.PhaseLookingUp, snap.Phase)

	_, err = s.AcquireLookup()
	require.ErrorIs(t, err, domain.ErrConcurrentRequest)
	assert.Equal(t, snap.Version, s.Snapshot().Version, "rejected acquire must not change state")

	release()
	release()
	snap = s.Snapshot()
	assert.False(t, snap.RequestInFlight)
	assert.Equal(t, domain.PhaseIdle, snap.Phase)

	release2, err := s.AcquireLookup()
	require.NoError(t, err)
	release2()
}

func TestAcquireLookup_ClearsPreviousError(t *testing.T) {
	s := New()
	s.RecordError(&domain.LookupError{Kind: domain.ConnectionFailed})

	release, err := s.AcquireLookup()
	require.NoError(t, err)
	defer release()
	assert.NoError(t, s.Snapshot().Err)
}

func TestAcquireLookup_ReleasedAfterPanic(t *testing.T) {
	s := New()

	func() {
		defer func() { _ = recover() }()
		release, err := s.AcquireLookup()
		require.NoError(t, err)
		defer release()
		panic("backend exploded")
	}()

	assert.False(t, s.Snapshot().RequestInFlight)
}

func TestAcquireLookup_ConcurrentCallers(t *testing.T) {
	s := New()
	const callers = 32

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		acquired int
		releases []func()
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := s.AcquireLookup()
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrConcurrentRequest)
				return
			}
			mu.Lock()
			acquired++
			releases = append(releases, release)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired)
	for _, r := range releases {
		r()
	}
}

func TestBeginExport_Phase(t *testing.T) {
	s := New()
	require.NoError(t, s.ReplaceResult(testRef, testResult(testRef)))
	s.RecordError(errors.New("previous failure"))

	end := s.BeginExport()
	snap := s.Snapshot()
	assert.Equal(t, domain.PhaseExporting, snap.Phase)
	assert.NoError(t, snap.Err)

	end()
	end()
	assert.Equal(t, domain.PhaseReady, s.Snapshot().Phase)
}

func TestRecordError_NilIgnored(t *testing.T) {
	s := New()
	v := s.Snapshot().Version
	s.RecordError(nil)
	assert.Equal(t, v, s.Snapshot().Version)
}

func TestSubscribe_ReceivesTransitionsInOrder(t *testing.T) {
	s := New()
	var got []Snapshot
	s.Subscribe(func(snap Snapshot) { got = append(got, snap) })

	release, err := s.AcquireLookup()
	require.NoError(t, err)
	require.NoError(t, s.ReplaceResult(testRef, testResult(testRef)))
	release()

	require.Len(t, got, 3)
	assert.True(t, got[0].RequestInFlight)
	assert.False(t, got[0].HasResult())
	assert.True(t, got[1].RequestInFlight)
	assert.True(t, got[1].HasResult())
	assert.False(t, got[2].RequestInFlight)
	assert.Equal(t, domain.PhaseReady, got[2].Phase)

	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Version, got[i-1].Version)
	}
}

func TestSubscribe_MaySnapshot(t *testing.T) {
	s := New()
	var seen domain.EmbeddedImage
	s.Subscribe(func(Snapshot) { seen = s.Snapshot().Logo })

	s.SetLogo("data:image/png;base64,CCCC")
	assert.Equal(t, domain.EmbeddedImage("data:image/png;base64,CCCC"), seen)
}
