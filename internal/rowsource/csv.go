package rowsource

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/medlot/claimload/internal/model"
	"github.com/medlot/claimload/internal/normalize"
)

// CSVReader streams LineItemRows from a CSV sheet export. The first record
// is the header row; header cells are normalized the same way spreadsheet
// headers are (trim, lowercase, camel-join), so "Claim Number" and
// "claim number" both address the claimNumber attribute.
type CSVReader struct {
	file    *os.File
	reader  *csv.Reader
	headers []string
}

// OpenCSV opens a CSV export and reads its header row.
func OpenCSV(path string) (*CSVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}

	buf := bufio.NewReaderSize(f, 256*1024)

	// Skip UTF-8 BOM if present.
	if bom, err := buf.Peek(3); err == nil && len(bom) >= 3 &&
		bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = buf.Discard(3)
	}

	r := csv.NewReader(buf)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	headerRow, err := r.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	headers := make([]string, len(headerRow))
	for i, h := range headerRow {
		headers[i] = normalize.HeaderKey(h)
	}

	return &CSVReader{file: f, reader: r, headers: headers}, nil
}

// Read fills rows from the CSV stream. Returns io.EOF when exhausted.
func (r *CSVReader) Read(rows []model.LineItemRow) (int, error) {
	for i := range rows {
		record, err := r.reader.Read()
		if err == io.EOF {
			return i, io.EOF
		}
		if err != nil {
			return i, fmt.Errorf("read csv row: %w", err)
		}
		row := model.LineItemRow{}
		for col, value := range record {
			if col >= len(r.headers) || r.headers[col] == "" {
				continue
			}
			row.SetAttr(r.headers[col], strings.TrimSpace(value))
		}
		rows[i] = row
	}
	return len(rows), nil
}

// Close releases the underlying file.
func (r *CSVReader) Close() error {
	return r.file.Close()
}
