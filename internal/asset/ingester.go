// Package asset turns user-selected logo files into embeddable images.
package asset

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/couchcryptid/catastro-tasador/internal/domain"
	"github.com/couchcryptid/catastro-tasador/internal/observability"
	"github.com/couchcryptid/catastro-tasador/internal/state"
)

// Ingester validates logo content and stores it on the analysis state.
type Ingester struct {
	state    *state.AnalysisState
	maxBytes int64
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewIngester creates an ingester accepting images up to maxBytes.
func NewIngester(st *state.AnalysisState, maxBytes int64, metrics *observability.Metrics, logger *slog.Logger) *Ingester {
	return &Ingester{
		state:    st,
		maxBytes: maxBytes,
		metrics:  metrics,
		logger:   logger,
	}
}

// Ingest reads r to the end, encodes it as a data URI, and sets it as the
// report logo. Non-image or oversized content is rejected with
// *domain.AssetReadError and the previous logo is kept.
func (i *Ingester) Ingest(ctx context.Context, r io.Reader) (domain.EmbeddedImage, error) {
	data, err := io.ReadAll(io.LimitReader(r, i.maxBytes+1))
	if err != nil {
		return "", i.reject(&domain.AssetReadError{Reason: "archivo ilegible", Err: err})
	}
	if err := ctx.Err(); err != nil {
		return "", i.reject(&domain.AssetReadError{Reason: "lectura cancelada", Err: err})
	}

	image, err := i.encode(data)
	if err != nil {
		return "", i.reject(err)
	}

	i.state.SetLogo(image)
	i.metrics.LogoIngestions.WithLabelValues("success").Inc()
	i.logger.Info("logo attached", "media_type", image.MediaType(), "bytes", len(data))
	return image, nil
}

// IngestFile ingests the file at path.
func (i *Ingester) IngestFile(ctx context.Context, path string) (domain.EmbeddedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", i.reject(&domain.AssetReadError{Reason: "archivo ilegible", Err: err})
	}
	defer f.Close()
	return i.Ingest(ctx, f)
}

func (i *Ingester) encode(data []byte) (domain.EmbeddedImage, error) {
	if len(data) == 0 {
		return "", &domain.AssetReadError{Reason: "archivo vacío"}
	}
	if int64(len(data)) > i.maxBytes {
		return "", &domain.AssetReadError{Reason: fmt.Sprintf("supera %d bytes", i.maxBytes)}
	}

	mediaType := sniffMediaType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		return "", &domain.AssetReadError{Reason: "no es una imagen (" + mediaType + ")"}
	}

	return domain.EmbeddedImage("data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)), nil
}

// sniffMediaType extends content sniffing with SVG, which is text-based and
// reported as XML or plain text.
func sniffMediaType(data []byte) string {
	mediaType, _, _ := strings.Cut(http.DetectContentType(data), ";")
	if (mediaType == "text/xml" || mediaType == "text/plain") && isSVG(data) {
		return "image/svg+xml"
	}
	return mediaType
}

// isSVG reports whether the root element of data is <svg>.
func isSVG(data []byte) bool {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local == "svg"
		}
	}
}

func (i *Ingester) reject(err error) error {
	i.metrics.LogoIngestions.WithLabelValues("rejected").Inc()
	i.logger.Warn("logo rejected", "error", err)
	return err
}
