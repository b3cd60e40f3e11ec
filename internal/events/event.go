// Package events publishes spatial change events for imported products so
// downstream H3 caches can drop the cells a new footprint covers.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	OpInsert = "insert"
	Source   = "catalog-importer"
)

type Event struct {
	Version   int             `json:"version"`
	Op        string          `json:"op"`
	Layer     string          `json:"layer"`
	TS        time.Time       `json:"ts"`
	FeatureID string          `json:"feature_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Source    string          `json:"source,omitempty"`
	Geometry  json.RawMessage `json:"geometry"`
	H3Cells   []string        `json:"h3_cells,omitempty"`
	Res       *int            `json:"res,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return errors.New("version must be 1")
	}
	if e.Op != OpInsert {
		return fmt.Errorf("op %q not supported", e.Op)
	}
	if strings.TrimSpace(e.Layer) == "" {
		return errors.New("layer is required")
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(e.Geometry, &hdr); err != nil {
		return fmt.Errorf("geometry parse: %w", err)
	}
	if hdr.Type != "MultiPolygon" {
		return errors.New("geometry.type must be MultiPolygon")
	}
	return nil
}
