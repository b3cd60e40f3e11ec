package footprint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// forces Multi, drops Z, then exterior CCW / holes CW as GeoJSON defines it
// (ST_ForceRHR alone would leave exteriors clockwise). 17 digits keeps every
// float64 exact; the default of 9 rounds.
const forceRHRQuery = `SELECT ST_AsGeoJSON(ST_ForcePolygonCCW(ST_Force2D(ST_Multi(ST_GeomFromGeoJSON($1)))), 17)`

// Querier is satisfied by *pgxpool.Pool and *pgx.Conn.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostGIS delegates ring orientation to a PostGIS server. The type check,
// degenerate ring handling and the output encoding are shared with Embedded,
// so both produce identical documents for identical input.
type PostGIS struct {
	db Querier
}

func NewPostGIS(db Querier) *PostGIS {
	return &PostGIS{db: db}
}

func (p *PostGIS) Normalize(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
	g, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	// PostGIS rejects short rings and reverses flat ones; keep those local
	if hasDegenerateRing(g.Multi()) {
		return Encode(Canonical(g))
	}
	in, err := Encode(g.Multi())
	if err != nil {
		return nil, err
	}

	var out string
	if err := p.db.QueryRow(ctx, forceRHRQuery, string(in)).Scan(&out); err != nil {
		return nil, fmt.Errorf("postgis force rhr: %w", err)
	}

	fixed, err := Parse(json.RawMessage(out))
	if err != nil {
		return nil, fmt.Errorf("postgis returned unusable geometry: %w", err)
	}
	return Encode(Canonical(fixed))
}
