// Package footprint canonicalizes product footprints to 2D right-hand-rule MultiPolygons.
package footprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

type Kind int

const (
	KindPolygon Kind = iota + 1
	KindMultiPolygon
)

func (k Kind) String() string {
	switch k {
	case KindPolygon:
		return "Polygon"
	case KindMultiPolygon:
		return "MultiPolygon"
	default:
		return "Unknown"
	}
}

// Geometry is a decoded footprint. Exactly one of Polygon or MultiPolygon
// is set, according to Kind.
type Geometry struct {
	Kind         Kind
	Polygon      orb.Polygon
	MultiPolygon orb.MultiPolygon
}

// Multi returns the geometry as a MultiPolygon without copying rings.
func (g Geometry) Multi() orb.MultiPolygon {
	switch g.Kind {
	case KindPolygon:
		return orb.MultiPolygon{g.Polygon}
	case KindMultiPolygon:
		return g.MultiPolygon
	default:
		return nil
	}
}

// Parse decodes a GeoJSON Polygon or MultiPolygon. Positions with more than
// two values keep only x and y. A footprint encoded as a JSON string holding
// the geometry document is unwrapped first.
func Parse(raw json.RawMessage) (Geometry, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Geometry{}, parseErrorf("footprint is empty")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Geometry{}, &ParseError{Err: err}
		}
		raw = bytes.TrimSpace([]byte(s))
	}

	var doc struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Geometry{}, &ParseError{Err: err}
	}

	switch strings.TrimSpace(doc.Type) {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(doc.Coordinates, &rings); err != nil {
			return Geometry{}, parseErrorf("polygon coordinates: %w", err)
		}
		p, err := toPolygon(rings)
		if err != nil {
			return Geometry{}, &ParseError{Err: err}
		}
		return Geometry{Kind: KindPolygon, Polygon: p}, nil

	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(doc.Coordinates, &polys); err != nil {
			return Geometry{}, parseErrorf("multipolygon coordinates: %w", err)
		}
		mp := make(orb.MultiPolygon, 0, len(polys))
		for i, rings := range polys {
			p, err := toPolygon(rings)
			if err != nil {
				return Geometry{}, parseErrorf("polygon %d: %w", i, err)
			}
			mp = append(mp, p)
		}
		return Geometry{Kind: KindMultiPolygon, MultiPolygon: mp}, nil

	case "":
		return Geometry{}, parseErrorf("geometry has no type member")

	default:
		return Geometry{}, &GeometryTypeError{Type: doc.Type}
	}
}

func toPolygon(rings [][][]float64) (orb.Polygon, error) {
	p := make(orb.Polygon, 0, len(rings))
	for ri, ring := range rings {
		r := make(orb.Ring, 0, len(ring))
		for pi, pos := range ring {
			if len(pos) < 2 {
				return nil, fmt.Errorf("ring %d position %d has %d values, need at least 2", ri, pi, len(pos))
			}
			r = append(r, orb.Point{pos[0], pos[1]})
		}
		p = append(p, r)
	}
	return p, nil
}
