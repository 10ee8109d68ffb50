package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DefaultAffectionLabel is shown for constraints that carry no layer name.
const DefaultAffectionLabel = "Normativa"

// Affection is one regulatory or environmental constraint intersecting the parcel.
type Affection struct {
	Capa string `json:"capa,omitempty"` // layer name, optional
	Nota string `json:"nota"`
}

// Label returns the layer name, or DefaultAffectionLabel when absent.
func (a Affection) Label() string {
	if strings.TrimSpace(a.Capa) == "" {
		return DefaultAffectionLabel
	}
	return a.Capa
}

// String renders the affection as "<label>: <note>".
func (a Affection) String() string {
	return a.Label() + ": " + a.Nota
}

// AnalysisResult is the full outcome of one successful lookup.
// It is produced atomically and never partially populated.
type AnalysisResult struct {
	ID         string
	Reference  Reference
	Geometry   json.RawMessage // GeoJSON, opaque to the core
	Affections []Affection     // backend order
	RawData    json.RawMessage // "datos" payload, forwarded to the report
	FetchedAt  time.Time
}

// Clone returns a deep copy so callers cannot mutate shared backing arrays.
func (r AnalysisResult) Clone() AnalysisResult {
	r.Geometry = bytes.Clone(r.Geometry)
	r.RawData = bytes.Clone(r.RawData)
	r.Affections = slices.Clone(r.Affections)
	return r
}

// EmbeddedImage is an image encoded as a data URI ("data:image/png;base64,...").
type EmbeddedImage string

// MediaType returns the MIME type declared in the data URI, or "" if malformed.
func (e EmbeddedImage) MediaType() string {
	rest, ok := strings.CutPrefix(string(e), "data:")
	if !ok {
		return ""
	}
	mediaType, _, ok := strings.Cut(rest, ";")
	if !ok {
		return ""
	}
	return mediaType
}

// ReportRequest is the payload for one report export. It is built fresh per
// export and never persisted.
type ReportRequest struct {
	Reference      Reference
	TechnicianName string
	LicenseID      string
	Notes          string        // "" when the notes field is absent
	Logo           EmbeddedImage // "" when no logo was attached
	RawData        json.RawMessage
	AnalysisID     string // local bookkeeping, not sent to the backend
}

// FileHandle identifies a saved report.
type FileHandle struct {
	Name string
	Path string
	Size int64
}

// Phase is the workflow state shown by the dashboard.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLookingUp Phase = "looking_up"
	PhaseReady     Phase = "ready"
	PhaseExporting Phase = "exporting"
)

// ParcelSummary holds the headline fields shown above the constraint list.
type ParcelSummary struct {
	Referencia string `json:"referencia"`
	Direccion  string `json:"direccion"`
	Uso        string `json:"uso"`
	Superficie string `json:"superficie"`
}

// Summarize extracts the headline fields from the raw "datos" payload,
// substituting placeholders for anything missing.
func Summarize(ref Reference, raw json.RawMessage) ParcelSummary {
	summary := ParcelSummary{
		Referencia: ref.String(),
		Direccion:  "No disponible",
		Uso:        "No especificado",
		Superficie: "0 m²",
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return summary
	}
	if v := scalarString(fields["referencia"]); v != "" {
		summary.Referencia = v
	}
	if v := scalarString(fields["direccion"]); v != "" {
		summary.Direccion = v
	}
	if v := scalarString(fields["uso"]); v != "" {
		summary.Uso = v
	}
	if v := surfaceString(fields["superficie"]); v != "" {
		summary.Superficie = v
	}
	return summary
}

// surfaceString accepts either a bare number/string (square metres) or the
// {"valor": n, "unidad": "m²"} object produced by the urban analysis.
func surfaceString(v any) string {
	if obj, ok := v.(map[string]any); ok {
		value := scalarString(obj["valor"])
		if value == "" {
			return ""
		}
		unit := scalarString(obj["unidad"])
		if unit == "" {
			unit = "m²"
		}
		return value + " " + unit
	}
	if s := scalarString(v); s != "" {
		return s + " m²"
	}
	return ""
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return fmt.Sprint(t)
	default:
		return ""
	}
}
