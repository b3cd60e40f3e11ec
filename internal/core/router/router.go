// Package router holds the import server's HTTP handlers.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mohammed-shakir/catalog-importer/internal/importer"
	"github.com/mohammed-shakir/catalog-importer/internal/product"
)

// BatchImporter imports a product batch read from r.
type BatchImporter interface {
	ImportReader(ctx context.Context, r io.Reader) ([]importer.Outcome, error)
}

type importResponse struct {
	Summary  importer.Summary   `json:"summary"`
	Outcomes []importer.Outcome `json:"outcomes,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// HandleImportProducts runs the request body through the importer. Per-record
// failures still answer 200; a body that does not parse answers 400 and a run
// that stopped early answers 502 with the outcomes gathered so far.
func HandleImportProducts(logger *slog.Logger, imp BatchImporter, maxBody int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := io.Reader(r.Body)
		if maxBody > 0 {
			body = http.MaxBytesReader(w, r.Body, maxBody)
		}

		outcomes, err := imp.ImportReader(r.Context(), body)
		var (
			tooBig   *http.MaxBytesError
			parseErr *product.InputParseError
		)
		switch {
		case errors.As(err, &tooBig):
			writeJSON(w, http.StatusRequestEntityTooLarge, importResponse{Error: err.Error()})
		case errors.As(err, &parseErr):
			writeJSON(w, http.StatusBadRequest, importResponse{Error: err.Error()})
		case err != nil:
			logger.WarnContext(r.Context(), "import request aborted", "err", err)
			writeJSON(w, http.StatusBadGateway, importResponse{
				Summary:  importer.Summarize(outcomes),
				Outcomes: outcomes,
				Error:    err.Error(),
			})
		default:
			writeJSON(w, http.StatusOK, importResponse{
				Summary:  importer.Summarize(outcomes),
				Outcomes: outcomes,
			})
		}
	}
}

// HandleImportCollections answers 501 until collection import exists.
func HandleImportCollections() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotImplemented, importResponse{Error: importer.ErrCollectionImportUnimplemented.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
