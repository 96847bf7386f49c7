package aggregate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/medlot/claimload/internal/model"
)

// JSONSink writes claims to a file as one JSON array, streaming element by
// element so the full record set never sits in memory.
type JSONSink struct {
	file  *os.File
	buf   *bufio.Writer
	count int
}

// NewJSONSink creates (or truncates) the output file and opens the array.
func NewJSONSink(path string) (*JSONSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create records file: %w", err)
	}
	buf := bufio.NewWriterSize(f, 256*1024)
	if _, err := buf.WriteString("[\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("write records file: %w", err)
	}
	return &JSONSink{file: f, buf: buf}, nil
}

// WriteClaim appends one claim record to the array.
func (s *JSONSink) WriteClaim(c model.ClaimRecord) error {
	if s.count > 0 {
		if _, err := s.buf.WriteString(",\n"); err != nil {
			return fmt.Errorf("write records file: %w", err)
		}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal claim %s: %w", c.ClaimNumber, err)
	}
	if _, err := s.buf.Write(data); err != nil {
		return fmt.Errorf("write records file: %w", err)
	}
	s.count++
	return nil
}

// Count reports how many claims have been written.
func (s *JSONSink) Count() int {
	return s.count
}

// Close terminates the array and flushes to disk.
func (s *JSONSink) Close() error {
	if _, err := s.buf.WriteString("\n]\n"); err != nil {
		s.file.Close()
		return fmt.Errorf("write records file: %w", err)
	}
	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("flush records file: %w", err)
	}
	return s.file.Close()
}
