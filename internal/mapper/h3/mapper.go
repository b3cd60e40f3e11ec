package h3mapper

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"
)

// DefaultMaxCells caps how many cells one footprint may expand to before the
// mapper coarsens the resolution.
const DefaultMaxCells = 4096

type Mapper struct {
	maxCells int
}

func New() *Mapper { return &Mapper{maxCells: DefaultMaxCells} }

// NewWithLimit is New with a custom cell cap; n <= 0 disables coarsening.
func NewWithLimit(n int) *Mapper { return &Mapper{maxCells: n} }

// Cover returns the sorted, unique cells covering mp and the resolution they
// are at. A footprint smaller than a cell yields the cell holding its first
// vertex. One that would expand past the cell cap is covered at a coarser
// resolution instead.
func (m *Mapper) Cover(mp orb.MultiPolygon, res int) ([]string, int, error) {
	if err := validateRes(res); err != nil {
		return nil, 0, err
	}
	polys := make([]h3.GeoPolygon, 0, len(mp))
	for pi, p := range mp {
		if len(p) == 0 {
			continue
		}
		outer := toLoop(p[0])
		if len(outer) < 3 {
			continue
		}
		var holes []h3.GeoLoop
		for i := 1; i < len(p); i++ {
			h := toLoop(p[i])
			if len(h) < 3 {
				return nil, 0, fmt.Errorf("polygon %d hole %d has < 3 distinct vertices", pi, i-1)
			}
			holes = append(holes, h)
		}
		polys = append(polys, h3.GeoPolygon{GeoLoop: outer, Holes: holes})
	}
	if len(polys) == 0 {
		return nil, 0, errors.New("footprint has no polygon with an outer ring")
	}

	for {
		cells, err := polyfill(polys, res)
		if err != nil {
			return nil, 0, err
		}
		if m.maxCells > 0 && len(cells) > m.maxCells && res > 0 {
			res--
			continue
		}
		if len(cells) == 0 {
			c, err := h3.LatLngToCell(polys[0].GeoLoop[0], res)
			if err != nil {
				return nil, 0, fmt.Errorf("h3 cell for vertex: %w", err)
			}
			cells = []string{c.String()}
		}
		return cells, res, nil
	}
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// Convert an orb ring to an h3.GeoLoop (in degrees), dropping the closing vertex.
func toLoop(r orb.Ring) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(r))
	for _, p := range r {
		loop = append(loop, h3.LatLng{Lat: p.Lat(), Lng: p.Lon()})
	}
	if len(loop) >= 2 {
		last := loop[len(loop)-1]
		first := loop[0]
		if last.Lat == first.Lat && last.Lng == first.Lng {
			loop = loop[:len(loop)-1]
		}
	}
	return loop
}

// polyfill computes unique cells for every polygon and returns them sorted.
func polyfill(polys []h3.GeoPolygon, res int) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range polys {
		indexes, err := h3.PolygonToCells(p, res)
		if err != nil {
			return nil, fmt.Errorf("h3 polyfill: %w", err)
		}
		for _, idx := range indexes {
			s := idx.String()
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}
