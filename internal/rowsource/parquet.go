package rowsource

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/medlot/claimload/internal/model"
)

// ParquetReader wraps a parquet GenericReader for streaming LineItemRow
// records.
type ParquetReader struct {
	file   *os.File
	reader *parquet.GenericReader[model.LineItemRow]
}

// OpenParquet opens a Parquet row dump and validates its schema.
func OpenParquet(path string) (*ParquetReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat parquet file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	r := parquet.NewGenericReader[model.LineItemRow](pf)
	if err := validateSchema(r.Schema()); err != nil {
		r.Close()
		f.Close()
		return nil, err
	}
	return &ParquetReader{file: f, reader: r}, nil
}

// NumRows returns the total number of rows in the Parquet file.
func (r *ParquetReader) NumRows() int64 {
	return r.reader.NumRows()
}

// Read reads up to len(rows) records into the provided slice.
// Returns the number of rows read and io.EOF when done.
func (r *ParquetReader) Read(rows []model.LineItemRow) (int, error) {
	n, err := r.reader.Read(rows)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("read parquet rows: %w", err)
	}
	return n, err
}

// Close releases all resources.
func (r *ParquetReader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// validateSchema checks that the row dump carries the columns the
// aggregator cannot work without.
func validateSchema(schema *parquet.Schema) error {
	columns := make(map[string]bool)
	for _, field := range schema.Fields() {
		columns[strings.ToLower(field.Name())] = true
	}
	required := []string{"claim_number", "item", "quantity", "cost"}
	for _, col := range required {
		if !columns[col] {
			return fmt.Errorf("missing required column: %s", col)
		}
	}
	return nil
}
