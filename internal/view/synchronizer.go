// Package view renders analysis state snapshots onto the map, the constraint
// panel, and the status indicators. It is the only writer of those surfaces.
package view

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/couchcryptid/catastro-tasador/internal/domain"
	"github.com/couchcryptid/catastro-tasador/internal/state"
)

// NoConstraintsMessage is shown instead of an empty constraint list.
const NoConstraintsMessage = "Sin afecciones detectadas en esta parcela."

// MapRenderer owns the parcel layer of the map.
type MapRenderer interface {
	ClearParcelLayer()
	DrawParcelLayer(geometry json.RawMessage) error
	FitViewportToParcel()
}

// ConstraintPanel owns the list of affections and the parcel summary.
type ConstraintPanel interface {
	ClearPanel()
	ShowSummary(summary domain.ParcelSummary)
	ShowNoConstraints(message string)
	ShowConstraints(entries []PanelEntry)
}

// Indicators owns the busy spinner, the phase badge, and the error banner.
type Indicators interface {
	SetBusy(busy bool)
	SetPhase(phase domain.Phase)
	ShowError(message string)
	ClearError()
}

// PanelEntry is one rendered affection.
type PanelEntry struct {
	Label string `json:"capa"`
	Note  string `json:"nota"`
	Text  string `json:"texto"`
}

// BuildPanel converts affections to panel entries, preserving order and
// substituting the default label for affections without a layer name.
func BuildPanel(affections []domain.Affection) []PanelEntry {
	entries := make([]PanelEntry, 0, len(affections))
	for _, a := range affections {
		entries = append(entries, PanelEntry{
			Label: a.Label(),
			Note:  a.Nota,
			Text:  a.String(),
		})
	}
	return entries
}

// Synchronizer applies snapshots to the render collaborators. Rendering the
// same snapshot twice leaves the surfaces unchanged.
type Synchronizer struct {
	mapView    MapRenderer
	panel      ConstraintPanel
	indicators Indicators
	logger     *slog.Logger

	mu       sync.Mutex
	drawnID  string
	drawnGeo json.RawMessage
	drawn    bool
}

// NewSynchronizer creates a synchronizer writing to the given collaborators.
func NewSynchronizer(mapView MapRenderer, panel ConstraintPanel, indicators Indicators, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		mapView:    mapView,
		panel:      panel,
		indicators: indicators,
		logger:     logger,
	}
}

// Attach renders the current snapshot and subscribes to future transitions.
func (s *Synchronizer) Attach(st *state.AnalysisState) {
	s.OnStateChange(st.Snapshot())
	st.Subscribe(s.OnStateChange)
}

// OnStateChange renders snap.
func (s *Synchronizer) OnStateChange(snap state.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.renderIndicators(snap)

	if !snap.HasResult() {
		return
	}
	s.renderGeometry(snap.Result)
	s.renderPanel(snap.Result)
}

func (s *Synchronizer) renderIndicators(snap state.Snapshot) {
	s.indicators.SetBusy(snap.RequestInFlight)
	s.indicators.SetPhase(snap.Phase)
	if snap.Err != nil {
		s.indicators.ShowError(domain.UserMessage(snap.Err))
		return
	}
	s.indicators.ClearError()
}

func (s *Synchronizer) renderGeometry(result *domain.AnalysisResult) {
	if s.drawn && s.drawnID == result.ID && bytes.Equal(s.drawnGeo, result.Geometry) {
		return
	}

	s.mapView.ClearParcelLayer()
	s.drawn = false
	if err := s.mapView.DrawParcelLayer(result.Geometry); err != nil {
		s.logger.Warn("draw parcel layer", "ref", result.Reference, "error", err)
		return
	}
	s.mapView.FitViewportToParcel()

	s.drawn = true
	s.drawnID = result.ID
	s.drawnGeo = bytes.Clone(result.Geometry)
}

func (s *Synchronizer) renderPanel(result *domain.AnalysisResult) {
	s.panel.ClearPanel()
	s.panel.ShowSummary(domain.Summarize(result.Reference, result.RawData))
	if len(result.Affections) == 0 {
		s.panel.ShowNoConstraints(NoConstraintsMessage)
		return
	}
	s.panel.ShowConstraints(BuildPanel(result.Affections))
}
