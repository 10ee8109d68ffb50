// Package report builds report requests from the analysis state, has the
// backend render them, and saves the resulting PDF.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/couchcryptid/catastro-tasador/internal/config"
	"github.com/couchcryptid/catastro-tasador/internal/domain"
	"github.com/couchcryptid/catastro-tasador/internal/observability"
	"github.com/couchcryptid/catastro-tasador/internal/state"
	"github.com/jonboulle/clockwork"
)

// Form holds the technician fields typed into the report form. Empty fields
// fall back to the technician profile.
type Form struct {
	TechnicianName string `json:"tecnico"`
	LicenseID      string `json:"colegiado"`
	Notes          string `json:"notas"`
}

// Saver stores a rendered report under name.
type Saver interface {
	Save(ctx context.Context, name string, data []byte) (domain.FileHandle, error)
}

// Composer turns the current analysis into a saved PDF report.
type Composer struct {
	renderer domain.ReportRenderer
	saver    Saver
	state    *state.AnalysisState
	profile  config.TechnicianProfile
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewComposer creates a composer. profile may be nil.
func NewComposer(
	renderer domain.ReportRenderer,
	saver Saver,
	st *state.AnalysisState,
	profile *config.TechnicianProfile,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Composer {
	c := &Composer{
		renderer: renderer,
		saver:    saver,
		state:    st,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
	if profile != nil {
		c.profile = *profile
	}
	return c
}

// BuildRequest assembles a report request from the current snapshot. It fails
// with domain.ErrNoActiveAnalysis before any successful lookup.
func (c *Composer) BuildRequest(form Form) (domain.ReportRequest, error) {
	return BuildRequest(c.state.Snapshot(), c.applyDefaults(form))
}

// BuildRequest assembles a report request from snap and form.
func BuildRequest(snap state.Snapshot, form Form) (domain.ReportRequest, error) {
	if !snap.HasResult() {
		return domain.ReportRequest{}, domain.ErrNoActiveAnalysis
	}
	return domain.ReportRequest{
		Reference:      snap.Result.Reference,
		TechnicianName: strings.TrimSpace(form.TechnicianName),
		LicenseID:      strings.TrimSpace(form.LicenseID),
		Notes:          form.Notes,
		Logo:           snap.Logo,
		RawData:        snap.Result.RawData,
		AnalysisID:     snap.Result.ID,
	}, nil
}

// Export renders req through the backend and saves the PDF as
// Informe_<REF>.pdf. Failures are recorded on the state and returned.
func (c *Composer) Export(ctx context.Context, req domain.ReportRequest) (domain.FileHandle, error) {
	end := c.state.BeginExport()
	defer end()

	start := c.clock.Now()
	pdf, err := c.renderer.RenderReport(ctx, req)
	c.metrics.ExportDuration.Observe(c.clock.Since(start).Seconds())
	if err != nil {
		exportErr := asExportError(err)
		c.metrics.Exports.WithLabelValues(exportErr.Kind.String()).Inc()
		c.logger.Warn("report export failed", "ref", req.Reference, "kind", exportErr.Kind.String(), "error", err)
		c.state.RecordError(exportErr)
		return domain.FileHandle{}, exportErr
	}

	handle, err := c.saver.Save(ctx, FileName(req.Reference), pdf)
	if err != nil {
		err = fmt.Errorf("save report: %w", err)
		c.metrics.Exports.WithLabelValues("save_failed").Inc()
		c.logger.Error("report save failed", "ref", req.Reference, "error", err)
		c.state.RecordError(err)
		return domain.FileHandle{}, err
	}

	c.metrics.Exports.WithLabelValues("success").Inc()
	c.metrics.ReportBytes.Observe(float64(len(pdf)))
	c.logger.Info("report exported", "ref", req.Reference, "file", handle.Name, "bytes", len(pdf))
	return handle, nil
}

// FileName derives the download name for ref. Characters outside letters,
// digits, '-' and '_' become '_'.
func FileName(ref domain.Reference) string {
	safe := strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, strings.ToUpper(ref.String()))
	return "Informe_" + safe + ".pdf"
}

func (c *Composer) applyDefaults(form Form) Form {
	if strings.TrimSpace(form.TechnicianName) == "" {
		form.TechnicianName = c.profile.Name
	}
	if strings.TrimSpace(form.LicenseID) == "" {
		form.LicenseID = c.profile.LicenseID
	}
	if form.Notes == "" {
		form.Notes = c.profile.Notes
	}
	return form
}

func asExportError(err error) *domain.ExportError {
	var exportErr *domain.ExportError
	if errors.As(err, &exportErr) {
		return exportErr
	}
	return &domain.ExportError{Kind: domain.ConnectionFailed, Err: err}
}
