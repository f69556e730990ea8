package overlay

import "github.com/rotisserie/eris"

// Validation and geometry error roots. Callers match with eris.Is.
var (
	// ErrCRSMismatch indicates the source and target sets carry different
	// coordinate reference systems. Reprojection is out of scope; mixed-CRS
	// input is a precondition violation.
	ErrCRSMismatch = eris.New("overlay: source and target CRS differ")

	// ErrEmptyGeometry indicates a polygon with no rings or a nil geometry.
	ErrEmptyGeometry = eris.New("overlay: empty geometry")

	// ErrZeroAreaPolygon indicates a source polygon whose area is zero or
	// negative, for which an areal fraction is undefined.
	ErrZeroAreaPolygon = eris.New("overlay: zero-area polygon")

	// ErrDuplicateID indicates two polygons in the same set share an
	// identifier, which would make aggregation ambiguous.
	ErrDuplicateID = eris.New("overlay: duplicate identifier")

	// ErrMissingAttribute indicates a requested attribute column is absent
	// from a source polygon's attribute map.
	ErrMissingAttribute = eris.New("overlay: missing attribute")

	// ErrNegativeAttribute indicates an extensive attribute with a negative
	// value; counts must be non-negative.
	ErrNegativeAttribute = eris.New("overlay: negative attribute value")

	// ErrUnknownAttribute indicates a verification or redistribution request
	// for an attribute the source set was not built with.
	ErrUnknownAttribute = eris.New("overlay: unknown attribute")
)
