package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrentRequest is returned when a lookup is started while another one is in flight.
	ErrConcurrentRequest = errors.New("a lookup is already in progress")

	// ErrNoActiveAnalysis is returned when a report is requested before any successful lookup.
	ErrNoActiveAnalysis = errors.New("no active analysis")
)

// Fallback messages used when the backend rejects a call without a detail.
const (
	DefaultLookupRejection = "No se pudo analizar la parcela"
	DefaultExportRejection = "Error en el servidor"
)

// InvalidReferenceError is a local, pre-flight validation failure.
type InvalidReferenceError struct {
	Reference Reference
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid cadastral reference %q: %d characters, need at least %d",
		e.Reference, e.Reference.Len(), MinReferenceLength)
}

// FailureKind classifies a failed call to the backend.
type FailureKind int

const (
	ConnectionFailed FailureKind = iota + 1
	ServerRejected
	MalformedResponse
)

// String returns the label used in logs and metrics.
func (k FailureKind) String() string {
	switch k {
	case ConnectionFailed:
		return "connection_failed"
	case ServerRejected:
		return "server_rejected"
	case MalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// LookupError is the typed outcome of a failed parcel lookup.
type LookupError struct {
	Kind    FailureKind
	Message string // server-supplied detail for ServerRejected
	Err     error
}

func (e *LookupError) Error() string {
	switch e.Kind {
	case ServerRejected:
		return "lookup rejected: " + e.Message
	case MalformedResponse:
		if e.Err != nil {
			return "lookup response malformed: " + e.Err.Error()
		}
		return "lookup response malformed"
	default:
		if e.Err != nil {
			return "lookup connection failed: " + e.Err.Error()
		}
		return "lookup connection failed"
	}
}

func (e *LookupError) Unwrap() error { return e.Err }

// ExportError is the typed outcome of a failed report export.
// Kind is either ConnectionFailed or ServerRejected.
type ExportError struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *ExportError) Error() string {
	if e.Kind == ServerRejected {
		return "report export rejected: " + e.Message
	}
	if e.Err != nil {
		return "report export connection failed: " + e.Err.Error()
	}
	return "report export connection failed"
}

func (e *ExportError) Unwrap() error { return e.Err }

// AssetReadError reports a logo file that could not be read or accepted.
type AssetReadError struct {
	Reason string
	Err    error
}

func (e *AssetReadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("read logo: %s: %v", e.Reason, e.Err)
	}
	return "read logo: " + e.Reason
}

func (e *AssetReadError) Unwrap() error { return e.Err }

// UserMessage renders err as the message shown in the dashboard error indicator.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		invalid *InvalidReferenceError
		lookup  *LookupError
		export  *ExportError
		asset   *AssetReadError
	)
	switch {
	case errors.As(err, &invalid):
		return "Referencia Catastral no válida"
	case errors.Is(err, ErrConcurrentRequest):
		return "Ya hay una consulta en curso"
	case errors.Is(err, ErrNoActiveAnalysis):
		return "Primero analice una referencia"
	case errors.As(err, &lookup):
		switch lookup.Kind {
		case ServerRejected:
			return "Error: " + lookup.Message
		case MalformedResponse:
			return "Respuesta incompleta del servidor"
		default:
			return "Error conectando con el servidor"
		}
	case errors.As(err, &export):
		if export.Kind == ServerRejected {
			return "Error al generar el PDF: " + export.Message
		}
		return "Error al generar el PDF"
	case errors.As(err, &asset):
		return "No se pudo cargar el logo: " + asset.Reason
	default:
		return err.Error()
	}
}
