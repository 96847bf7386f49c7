// Package rowsource reads flat line-item rows from the supported interchange
// formats: Parquet row dumps and CSV sheet exports. Both yield the same
// LineItemRow records, so the aggregator is format-agnostic.
package rowsource

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/medlot/claimload/internal/model"
)

// Source streams LineItemRows in file order. Read fills the provided slice
// and returns io.EOF when exhausted, following the parquet reader contract.
type Source interface {
	Read(rows []model.LineItemRow) (int, error)
	Close() error
}

// Open picks a reader by file extension.
func Open(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return OpenParquet(path)
	case ".csv":
		return OpenCSV(path)
	}
	return nil, fmt.Errorf("unsupported row file %q: want .parquet or .csv", path)
}
