// Package state holds the single source of truth for one dashboard session.
package state

import (
	"fmt"
	"slices"
	"sync"

	"github.com/couchcryptid/catastro-tasador/internal/domain"
)

// Snapshot is an immutable view of the analysis state. Result is a deep copy
// and nil until the first successful lookup.
type Snapshot struct {
	Version         uint64
	Reference       domain.Reference
	Result          *domain.AnalysisResult
	Logo            domain.EmbeddedImage
	RequestInFlight bool
	Phase           domain.Phase
	Err             error // latest lookup or export failure, nil once cleared
}

// HasResult reports whether a lookup has completed successfully.
func (s Snapshot) HasResult() bool { return s.Result != nil }

// Subscriber receives a snapshot after every transition. Subscribers run
// synchronously and must not call mutating methods on the state.
type Subscriber func(Snapshot)

// AnalysisState is the mutable store for the current reference, result, logo,
// and request lifecycle. Create it with New and pass it by pointer.
type AnalysisState struct {
	// notifyMu serializes transitions with their notifications so
	// subscribers observe snapshots in version order.
	notifyMu sync.Mutex

	mu          sync.Mutex
	version     uint64
	reference   domain.Reference
	result      *domain.AnalysisResult
	logo        domain.EmbeddedImage
	inFlight    bool
	exporting   int
	lastErr     error
	subscribers []Subscriber
}

// New returns an empty state in the idle phase.
func New() *AnalysisState {
	return &AnalysisState{}
}

// Subscribe registers fn for future transitions.
func (s *AnalysisState) Subscribe(fn Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Snapshot returns a read-only copy of the current state.
func (s *AnalysisState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// AcquireLookup claims the single lookup slot. It fails with
// domain.ErrConcurrentRequest, leaving the state untouched, when a lookup is
// already in flight. The returned release func is safe to call more than once
// and must be deferred by the caller.
func (s *AnalysisState) AcquireLookup() (release func(), err error) {
	err = s.transition(func() error {
		if s.inFlight {
			return domain.ErrConcurrentRequest
		}
		s.inFlight = true
		s.lastErr = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = s.transition(func() error {
				s.inFlight = false
				return nil
			})
		})
	}, nil
}

// BeginExport marks a report export as running. Exports are not gated, so
// several may overlap; the returned func ends this one.
func (s *AnalysisState) BeginExport() (end func()) {
	_ = s.transition(func() error {
		s.exporting++
		s.lastErr = nil
		return nil
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = s.transition(func() error {
				s.exporting--
				return nil
			})
		})
	}
}

// ReplaceResult swaps the current reference and result together.
func (s *AnalysisState) ReplaceResult(ref domain.Reference, result domain.AnalysisResult) error {
	if result.Reference != ref {
		return fmt.Errorf("replace result: reference %q does not match result reference %q", ref, result.Reference)
	}
	stored := result.Clone()
	return s.transition(func() error {
		s.reference = ref
		s.result = &stored
		s.lastErr = nil
		return nil
	})
}

// SetLogo stores the report logo. It survives later lookups.
func (s *AnalysisState) SetLogo(image domain.EmbeddedImage) {
	_ = s.transition(func() error {
		s.logo = image
		return nil
	})
}

// RecordError stores err as the latest user-facing failure.
func (s *AnalysisState) RecordError(err error) {
	if err == nil {
		return
	}
	_ = s.transition(func() error {
		s.lastErr = err
		return nil
	})
}

// transition applies fn under the lock and, when it succeeds, notifies
// subscribers outside the lock.
func (s *AnalysisState) transition(fn func() error) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.version++
	snap := s.snapshotLocked()
	subs := slices.Clone(s.subscribers)
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
	return nil
}

func (s *AnalysisState) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:         s.version,
		Reference:       s.reference,
		Logo:            s.logo,
		RequestInFlight: s.inFlight,
		Phase:           s.phaseLocked(),
		Err:             s.lastErr,
	}
	if s.result != nil {
		r := s.result.Clone()
		snap.Result = &r
	}
	return snap
}

func (s *AnalysisState) phaseLocked() domain.Phase {
	switch {
	case s.inFlight:
		return domain.PhaseLookingUp
	case s.exporting > 0:
		return domain.PhaseExporting
	case s.result != nil:
		return domain.PhaseReady
	default:
		return domain.PhaseIdle
	}
}
