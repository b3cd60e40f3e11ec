// Package mapper converts product footprints to H3 cells.
package mapper

import "github.com/paulmach/orb"

type Interface interface {
	// Cover returns the cells covering mp and the resolution they are at.
	Cover(mp orb.MultiPolygon, res int) ([]string, int, error)
}
