package footprint

import (
	"errors"
	"fmt"
)

// ErrGeometryType matches any *GeometryTypeError via errors.Is.
var ErrGeometryType = errors.New("unsupported geometry type")

type GeometryTypeError struct {
	Type string
}

func (e *GeometryTypeError) Error() string {
	return fmt.Sprintf("geometry type %q is not supported for import, use Polygon or MultiPolygon", e.Type)
}

func (e *GeometryTypeError) Is(target error) bool { return target == ErrGeometryType }

// ParseError reports a footprint that is not decodable GeoJSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse footprint: " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

func parseErrorf(format string, args ...any) error {
	return &ParseError{Err: fmt.Errorf(format, args...)}
}
