package product

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/google/uuid"
)

// InputParseError is fatal for a run: nothing is imported when the input
// document cannot be decoded.
type InputParseError struct {
	Source string
	Err    error
}

func (e *InputParseError) Error() string {
	if e.Source == "" {
		return "parse input: " + e.Err.Error()
	}
	return fmt.Sprintf("parse input %s: %v", e.Source, e.Err)
}

func (e *InputParseError) Unwrap() error { return e.Err }

// Decode reads a JSON array of product records. A single object is
// accepted as a batch of one.
func Decode(r io.Reader) ([]Record, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, &InputParseError{Err: fmt.Errorf("read: %w", err)}
	}
	return decodeBytes(b)
}

func ReadFile(path string) ([]Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &InputParseError{Source: path, Err: err}
	}
	recs, err := decodeBytes(b)
	var pe *InputParseError
	if errors.As(err, &pe) {
		pe.Source = path
	}
	return recs, err
}

func decodeBytes(b []byte) ([]Record, error) {
	if !utf8.Valid(b) {
		return nil, &InputParseError{Err: errors.New("input is not valid UTF-8")}
	}
	b = bytes.TrimSpace(bytes.TrimPrefix(b, []byte("\xef\xbb\xbf")))
	if len(b) == 0 {
		return nil, &InputParseError{Err: errors.New("input is empty")}
	}

	if b[0] == '{' {
		if !json.Valid(b) {
			return nil, &InputParseError{Err: errors.New("input is not valid JSON")}
		}
		return []Record{decodeRecord(0, b)}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return nil, &InputParseError{Err: err}
	}
	if raws == nil {
		return nil, &InputParseError{Err: errors.New("input must be a JSON array of product records")}
	}
	recs := make([]Record, len(raws))
	for i, raw := range raws {
		recs[i] = decodeRecord(i, raw)
	}
	return recs, nil
}

// decodeRecord never fails the batch: a shape error is kept on the record.
func decodeRecord(i int, raw json.RawMessage) Record {
	var r Record
	err := errors.New("record is null")
	if !isNull(raw) {
		err = json.Unmarshal(raw, &r)
	}
	if err != nil {
		return Record{err: &RecordError{Index: i, Err: err}}
	}
	return r
}

// ValidUUID reports whether s parses as a UUID. It gates nothing during
// import.
func ValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
