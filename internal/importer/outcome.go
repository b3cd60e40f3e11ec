package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mohammed-shakir/catalog-importer/internal/catalog"
	"github.com/mohammed-shakir/catalog-importer/internal/footprint"
	"github.com/mohammed-shakir/catalog-importer/internal/product"
)

type State string

const (
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

// Stage is where a failed record stopped.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageValidate  Stage = "validate"
	StagePersist   Stage = "persist"
	// StageAborted marks records never attempted because the run stopped.
	StageAborted Stage = "aborted"
)

// Outcome is the result reported for one input record.
type Outcome struct {
	Index     int    `json:"index"`
	Name      string `json:"name,omitempty"`
	State     State  `json:"state"`
	Stage     Stage  `json:"stage,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Reason    string `json:"reason,omitempty"`
	ID        string `json:"id,omitempty"`

	Err error `json:"-"`
}

func succeeded(i int, name, id string) Outcome {
	return Outcome{Index: i, Name: name, State: StateSucceeded, ID: id}
}

func skipped(i int, name, id string) Outcome {
	return Outcome{Index: i, Name: name, State: StateSkipped, ID: id, Reason: "already imported"}
}

func failed(i int, name string, stage Stage, err error) Outcome {
	return Outcome{
		Index:     i,
		Name:      name,
		State:     StateFailed,
		Stage:     stage,
		ErrorKind: errorKind(err),
		Reason:    err.Error(),
		Err:       err,
	}
}

// transport reports whether the record failed without the catalog answering.
func (o Outcome) transport() bool {
	return o.State == StateFailed && errors.Is(o.Err, catalog.ErrTransport)
}

func errorKind(err error) string {
	var (
		gte *footprint.GeometryTypeError
		pe  *footprint.ParseError
		re  *product.RecordError
		ve  *catalog.ValidationError
		ce  *catalog.PersistError
		te  *catalog.TransportError
	)
	switch {
	case errors.As(err, &gte):
		return "GeometryTypeError"
	case errors.As(err, &pe), errors.As(err, &re):
		return "ParseError"
	case errors.As(err, &ve):
		return "ValidationError"
	case errors.As(err, &ce):
		return "PersistError"
	case errors.As(err, &te):
		return "TransportError"
	case errors.Is(err, ErrBatchAborted):
		return "Aborted"
	default:
		return "Error"
	}
}

type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch o.State {
		case StateSucceeded:
			s.Succeeded++
		case StateFailed:
			s.Failed++
		case StateSkipped:
			s.Skipped++
		}
	}
	return s
}

// FailurePolicy decides whether one failed record stops the rest of the run.
type FailurePolicy string

const (
	PolicyContinue FailurePolicy = "continue"
	PolicyAbort    FailurePolicy = "abort"
)

func ParsePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyContinue:
		return PolicyContinue, nil
	case PolicyAbort:
		return PolicyAbort, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want continue or abort)", s)
	}
}
