// Package viewmodel is an in-memory render target for the view synchronizer.
// The dashboard API serves its View as JSON.
package viewmodel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/couchcryptid/catastro-tasador/internal/domain"
	"github.com/couchcryptid/catastro-tasador/internal/view"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrLayerExists is returned when a parcel layer is drawn over another one.
var ErrLayerExists = errors.New("parcel layer already drawn")

// Bounds is a lon/lat bounding box.
type Bounds struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// View is the rendered dashboard as seen by a client.
type View struct {
	Layer         json.RawMessage       `json:"layer,omitempty"`
	Viewport      *Bounds               `json:"viewport,omitempty"`
	Summary       *domain.ParcelSummary `json:"summary,omitempty"`
	Constraints   []view.PanelEntry     `json:"constraints"`
	NoConstraints string                `json:"no_constraints,omitempty"`
	Busy          bool                  `json:"busy"`
	Phase         domain.Phase          `json:"phase"`
	Error         string                `json:"error,omitempty"`
	Redraws       int                   `json:"redraws"`
}

// Document implements view.MapRenderer, view.ConstraintPanel, and
// view.Indicators.
type Document struct {
	mu      sync.RWMutex
	v       View
	pending *Bounds // bounds of the drawn layer, applied by FitViewportToParcel
}

// NewDocument returns an empty document in the idle phase.
func NewDocument() *Document {
	return &Document{v: View{Phase: domain.PhaseIdle, Constraints: []view.PanelEntry{}}}
}

// View returns a copy of the current document.
func (d *Document) View() View {
	d.mu.RLock()
	defer d.mu.RUnlock()

	v := d.v
	v.Layer = bytes.Clone(d.v.Layer)
	v.Constraints = slices.Clone(d.v.Constraints)
	if d.v.Viewport != nil {
		b := *d.v.Viewport
		v.Viewport = &b
	}
	if d.v.Summary != nil {
		s := *d.v.Summary
		v.Summary = &s
	}
	return v
}

func (d *Document) ClearParcelLayer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.v.Layer = nil
	d.v.Viewport = nil
	d.pending = nil
}

func (d *Document) DrawParcelLayer(geometry json.RawMessage) error {
	bounds, err := geometryBounds(geometry)
	if err != nil {
		return fmt.Errorf("draw parcel layer: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.v.Layer != nil {
		return ErrLayerExists
	}
	d.v.Layer = bytes.Clone(geometry)
	d.v.Redraws++
	d.pending = &Bounds{
		MinLon: bounds.Min.Lon(),
		MinLat: bounds.Min.Lat(),
		MaxLon: bounds.Max.Lon(),
		MaxLat: bounds.Max.Lat(),
	}
	return nil
}

func (d *Document) FitViewportToParcel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		b := *d.pending
		d.v.Viewport = &b
	}
}

func (d *Document) ClearPanel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.v.Summary = nil
	d.v.Constraints = []view.PanelEntry{}
	d.v.NoConstraints = ""
}

func (d *Document) ShowSummary(summary domain.ParcelSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.v.Summary = &summary
}

func (d *Document) ShowNoConstraints(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.v.Constraints = []view.PanelEntry{}
	d.v.NoConstraints = message
}

func (d *Document) ShowConstraints(entries []view.PanelEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.v.Constraints = slices.Clone(entries)
	d.v.NoConstraints = ""
}

func (d *Document) SetBusy(busy bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.v.Busy = busy
}

func (d *Document) SetPhase(phase domain.Phase) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.v.Phase = phase
}

func (d *Document) ShowError(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.v.Error = message
}

func (d *Document) ClearError() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.v.Error = ""
}

// geometryBounds accepts a FeatureCollection, a Feature, or a bare geometry.
func geometryBounds(raw json.RawMessage) (orb.Bound, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return orb.Bound{}, fmt.Errorf("decode geojson: %w", err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("decode feature collection: %w", err)
		}
		var (
			bound orb.Bound
			found bool
		)
		for _, f := range fc.Features {
			if f.Geometry == nil {
				continue
			}
			if !found {
				bound, found = f.Geometry.Bound(), true
				continue
			}
			bound = bound.Union(f.Geometry.Bound())
		}
		if !found {
			return orb.Bound{}, errors.New("feature collection has no geometry")
		}
		return bound, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("decode feature: %w", err)
		}
		if f.Geometry == nil {
			return orb.Bound{}, errors.New("feature has no geometry")
		}
		return f.Geometry.Bound(), nil
	case "":
		return orb.Bound{}, errors.New(`geojson has no "type"`)
	default:
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("decode geometry: %w", err)
		}
		return g.Geometry().Bound(), nil
	}
}

var (
	_ view.MapRenderer     = (*Document)(nil)
	_ view.ConstraintPanel = (*Document)(nil)
	_ view.Indicators      = (*Document)(nil)
)
