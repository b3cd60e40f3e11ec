// Package product holds the importable product record and its input file format.
package product

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one product as read from the input file. Metadata, Properties,
// Data and any unknown members are carried through byte-for-byte.
type Record struct {
	Name           string
	CollectionName string
	Footprint      json.RawMessage
	Metadata       json.RawMessage
	Properties     json.RawMessage
	Data           json.RawMessage

	extra map[string]json.RawMessage
	err   error
}

// RecordError is a batch element that is valid JSON but not a usable product
// record. It fails that record only.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d is not a product: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Err reports why the record could not be decoded, or nil.
func (r Record) Err() error { return r.err }

var knownMembers = map[string]struct{}{
	"name": {}, "collectionName": {}, "footprint": {},
	"metadata": {}, "properties": {}, "data": {},
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("product record must be an object")
	}

	var out Record
	if v, ok := m["name"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &out.Name); err != nil {
			return fmt.Errorf("name: %w", err)
		}
	}
	if v, ok := m["collectionName"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &out.CollectionName); err != nil {
			return fmt.Errorf("collectionName: %w", err)
		}
	}
	out.Footprint = m["footprint"]
	out.Metadata = m["metadata"]
	out.Properties = m["properties"]
	out.Data = m["data"]

	for k, v := range m {
		if _, known := knownMembers[k]; known {
			continue
		}
		if out.extra == nil {
			out.extra = map[string]json.RawMessage{}
		}
		out.extra[k] = v
	}
	*r = out
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(r.extra)+6)
	for k, v := range r.extra {
		m[k] = v
	}
	name, err := json.Marshal(r.Name)
	if err != nil {
		return nil, err
	}
	m["name"] = name
	if r.CollectionName != "" {
		cn, err := json.Marshal(r.CollectionName)
		if err != nil {
			return nil, err
		}
		m["collectionName"] = cn
	}
	setRaw(m, "footprint", r.Footprint)
	setRaw(m, "metadata", r.Metadata)
	setRaw(m, "properties", r.Properties)
	setRaw(m, "data", r.Data)
	return json.Marshal(m)
}

func setRaw(m map[string]json.RawMessage, k string, v json.RawMessage) {
	if len(bytes.TrimSpace(v)) == 0 {
		return
	}
	m[k] = v
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// WithFootprint returns a copy of r carrying fp as its footprint.
func (r Record) WithFootprint(fp json.RawMessage) Record {
	r.Footprint = fp
	return r
}

// Label names the record in outcomes and logs: the product name, falling
// back to metadata.title.
func (r Record) Label() string {
	if n := strings.TrimSpace(r.Name); n != "" {
		return n
	}
	if len(r.Metadata) == 0 {
		return ""
	}
	var md struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(r.Metadata, &md); err != nil {
		return ""
	}
	return strings.TrimSpace(md.Title)
}
