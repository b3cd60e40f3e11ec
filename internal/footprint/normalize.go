package footprint

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Normalizer turns a raw GeoJSON footprint into its canonical MultiPolygon
// encoding. Implementations must be safe for concurrent use.
type Normalizer interface {
	Normalize(ctx context.Context, raw json.RawMessage) (json.RawMessage, error)
}

// Embedded normalizes in-process without any I/O.
type Embedded struct{}

func NewEmbedded() Embedded { return Embedded{} }

func (Embedded) Normalize(_ context.Context, raw json.RawMessage) (json.RawMessage, error) {
	return NormalizeJSON(raw)
}

func NormalizeJSON(raw json.RawMessage) (json.RawMessage, error) {
	g, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return Encode(Canonical(g))
}

// Canonical wraps g as a MultiPolygon and orients every ring by the GeoJSON
// right-hand rule. The input rings are never modified.
func Canonical(g Geometry) orb.MultiPolygon {
	src := g.Multi()
	out := make(orb.MultiPolygon, len(src))
	for i, p := range src {
		out[i] = orientPolygon(p)
	}
	return out
}

// exterior ring counter-clockwise, holes clockwise
func orientPolygon(p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		cp := make(orb.Ring, len(r))
		copy(cp, r)
		// degenerate rings have no meaningful orientation
		if degenerate(cp) {
			out[i] = cp
			continue
		}
		exterior := i == 0
		if (signedArea(cp) > 0) != exterior {
			cp.Reverse()
		}
		out[i] = cp
	}
	return out
}

// relative to the squared extent of the ring
const degenerateTolerance = 1e-12

// degenerate reports rings too short or too flat for their winding to mean
// anything. Area is compared against the ring's extent so slivers whose sign
// is floating-point noise are left alone.
func degenerate(r orb.Ring) bool {
	if len(r) < 4 {
		return true
	}
	b := r.Bound()
	span := math.Max(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1])
	return math.Abs(signedArea(r)) <= degenerateTolerance*span*span
}

func hasDegenerateRing(mp orb.MultiPolygon) bool {
	for _, p := range mp {
		for _, r := range p {
			if degenerate(r) {
				return true
			}
		}
	}
	return false
}

// shoelace sum, positive for counter-clockwise rings
func signedArea(r orb.Ring) float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := range n {
		a := r[i]
		b := r[(i+1)%n]
		sum += a[0]*b[1] - b[0]*a[1]
	}
	return sum / 2
}

type document struct {
	Type        string           `json:"type"`
	Coordinates orb.MultiPolygon `json:"coordinates"`
}

// Encode writes mp as {"type":"MultiPolygon","coordinates":[...]}.
func Encode(mp orb.MultiPolygon) (json.RawMessage, error) {
	if mp == nil {
		mp = orb.MultiPolygon{}
	}
	b, err := json.Marshal(document{Type: "MultiPolygon", Coordinates: mp})
	if err != nil {
		return nil, fmt.Errorf("encode multipolygon: %w", err)
	}
	return b, nil
}

const crs84 = `{"type":"name","properties":{"name":"urn:ogc:def:crs:OGC:1.3:CRS84"}}`

// WithDefaultCRS adds the CRS84 named crs member when the footprint has none.
func WithDefaultCRS(raw json.RawMessage) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ParseError{Err: err}
	}
	if _, ok := m["crs"]; ok {
		return raw, nil
	}
	m["crs"] = json.RawMessage(crs84)
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode footprint crs: %w", err)
	}
	return b, nil
}
