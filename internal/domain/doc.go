// Package domain models the cadastral parcel analysis handled by the dashboard.
//
// # Cadastral References
//
// A cadastral reference ("referencia catastral") identifies a real-estate
// parcel in the Spanish cadastre. Urban references are 20 characters, e.g.
//
//	9872023VH5797S0001WX
//	└─┬──┘└─┬──┘└┬─┘└┬┘
//	 plot  sheet  unit control
//
// Users paste references with spaces or lower case ("9872023 vh5797s 0001 wx").
// [Normalize] trims surrounding whitespace and upper-cases; inner spacing is
// kept as typed because the backend accepts both forms. [Validate] only checks
// the minimum length of 14 characters (the 14-character parcel prefix is
// enough for a parcel-level lookup). Control characters are not verified.
//
// # Backend Payload
//
// A successful lookup returns three things that are kept together in an
// [AnalysisResult]:
//
//	datos     technical payload, forwarded verbatim to the report generator
//	          ("datos.zonas_afectadas" holds the constraint list)
//	geojson   parcel geometry as GeoJSON, passed untouched to the map layer
//
// Each entry in "zonas_afectadas" is an [Affection]: the layer name ("capa")
// that intersects the parcel and a human-readable note ("nota"). The layer
// name is optional; entries without it are labelled [DefaultAffectionLabel].
//
// # Failures
//
// Every failure is a typed error from this package so callers can branch with
// errors.Is / errors.As and render a user-facing message via [UserMessage].
package domain
