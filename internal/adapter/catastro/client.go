package catastro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/couchcryptid/catastro-tasador/internal/config"
	"github.com/couchcryptid/catastro-tasador/internal/domain"
)

// Lookup request encodings accepted by the backend.
const (
	EncodingForm = "form"
	EncodingJSON = "json"
)

// Client implements domain.ParcelLookup and domain.ReportRenderer against the
// catastro analysis backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	lookupPath string
	reportPath string
	encoding   string
	logger     *slog.Logger
}

// NewClient creates a backend client from the dashboard configuration.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.BackendTimeout,
		},
		baseURL:    cfg.BackendURL,
		lookupPath: cfg.LookupPath,
		reportPath: cfg.ReportPath,
		encoding:   cfg.LookupEncoding,
		logger:     logger,
	}
}

// LookupParcel posts the reference to the lookup endpoint and maps the outcome
// to an AnalysisResult or a *domain.LookupError.
func (c *Client) LookupParcel(ctx context.Context, ref domain.Reference) (domain.AnalysisResult, error) {
	req, err := c.newLookupRequest(ctx, ref)
	if err != nil {
		return domain.AnalysisResult{}, &domain.LookupError{Kind: domain.ConnectionFailed, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.AnalysisResult{}, &domain.LookupError{
			Kind: domain.ConnectionFailed,
			Err:  fmt.Errorf("lookup request: %w", err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.AnalysisResult{}, &domain.LookupError{
			Kind: domain.ConnectionFailed,
			Err:  fmt.Errorf("read lookup response: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("lookup rejected", "ref", ref, "status", resp.StatusCode)
		return domain.AnalysisResult{}, &domain.LookupError{
			Kind:    domain.ServerRejected,
			Message: detailOrDefault(body, domain.DefaultLookupRejection),
		}
	}

	return parseLookupResponse(ref, body)
}

// RenderReport posts the report payload and returns the PDF bytes, or a
// *domain.ExportError.
func (c *Client) RenderReport(ctx context.Context, r domain.ReportRequest) ([]byte, error) {
	payload, err := json.Marshal(newReportPayload(r))
	if err != nil {
		return nil, fmt.Errorf("encode report request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.reportPath, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.ExportError{Kind: domain.ConnectionFailed, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ExportError{Kind: domain.ConnectionFailed, Err: fmt.Errorf("report request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ExportError{Kind: domain.ConnectionFailed, Err: fmt.Errorf("read report response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("report rejected", "ref", r.Reference, "status", resp.StatusCode)
		return nil, &domain.ExportError{
			Kind:    domain.ServerRejected,
			Message: detailOrDefault(body, domain.DefaultExportRejection),
		}
	}
	return body, nil
}

// CheckReadiness reports whether the backend answers HTTP at all. Any status
// code counts as reachable.
func (c *Client) CheckReadiness(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) newLookupRequest(ctx context.Context, ref domain.Reference) (*http.Request, error) {
	var (
		body        io.Reader
		contentType string
	)
	switch c.encoding {
	case EncodingJSON:
		data, err := json.Marshal(map[string]string{"referencia": ref.String()})
		if err != nil {
			return nil, fmt.Errorf("encode lookup request: %w", err)
		}
		body, contentType = bytes.NewReader(data), "application/json"
	default:
		form := url.Values{"ref": {ref.String()}}
		body, contentType = strings.NewReader(form.Encode()), "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.lookupPath, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func parseLookupResponse(ref domain.Reference, body []byte) (domain.AnalysisResult, error) {
	var resp lookupResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.AnalysisResult{}, &domain.LookupError{
			Kind: domain.MalformedResponse,
			Err:  fmt.Errorf("decode response: %w", err),
		}
	}

	if resp.Status != "success" {
		msg := detailText(resp.Detail)
		if msg == "" {
			msg = domain.DefaultLookupRejection
		}
		return domain.AnalysisResult{}, &domain.LookupError{Kind: domain.ServerRejected, Message: msg}
	}

	if isNull(resp.Datos) {
		return domain.AnalysisResult{}, &domain.LookupError{Kind: domain.MalformedResponse, Err: errors.New(`missing "datos"`)}
	}
	if isNull(resp.GeoJSON) {
		return domain.AnalysisResult{}, &domain.LookupError{Kind: domain.MalformedResponse, Err: errors.New(`missing "geojson"`)}
	}

	var d datos
	if err := json.Unmarshal(resp.Datos, &d); err != nil {
		return domain.AnalysisResult{}, &domain.LookupError{
			Kind: domain.MalformedResponse,
			Err:  fmt.Errorf("decode datos: %w", err),
		}
	}

	affections := make([]domain.Affection, 0, len(d.ZonasAfectadas))
	for _, z := range d.ZonasAfectadas {
		affections = append(affections, domain.Affection{Capa: z.Capa, Nota: z.Nota})
	}

	return domain.AnalysisResult{
		Reference:  ref,
		Geometry:   resp.GeoJSON,
		Affections: affections,
		RawData:    resp.Datos,
	}, nil
}

// detailOrDefault extracts the "detail" field of an error body, falling back
// to def when the body carries none.
func detailOrDefault(body []byte, def string) string {
	var e struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return def
	}
	if msg := detailText(e.Detail); msg != "" {
		return msg
	}
	return def
}

// detailText renders a "detail" value. FastAPI sends a string for handled
// errors and a list of objects for validation errors.
func detailText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return string(raw)
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Backend wire types.

type lookupResponse struct {
	Status  string          `json:"status"`
	Detail  json.RawMessage `json:"detail"`
	Datos   json.RawMessage `json:"datos"`
	GeoJSON json.RawMessage `json:"geojson"`
}

type datos struct {
	ZonasAfectadas []zona `json:"zonas_afectadas"`
}

type zona struct {
	Capa string `json:"capa"`
	Nota string `json:"nota"`
}

type reportPayload struct {
	Ref       string          `json:"ref"`
	Tecnico   string          `json:"tecnico"`
	Colegiado string          `json:"colegiado"`
	Notas     string          `json:"notas"`
	Logo      string          `json:"logo,omitempty"`
	Datos     json.RawMessage `json:"datos"`
}

func newReportPayload(r domain.ReportRequest) reportPayload {
	datos := r.RawData
	if isNull(datos) {
		datos = json.RawMessage("null")
	}
	return reportPayload{
		Ref:       r.Reference.String(),
		Tecnico:   r.TechnicianName,
		Colegiado: r.LicenseID,
		Notas:     r.Notes,
		Logo:      string(r.Logo),
		Datos:     datos,
	}
}

var (
	_ domain.ParcelLookup   = (*Client)(nil)
	_ domain.ReportRenderer = (*Client)(nil)
)
