package pipeline

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"oc-search-go/internal/normalizer"
	"oc-search-go/internal/query"
	"oc-search-go/internal/schema"
	"oc-search-go/pkg/log"
)

const utf8BOM = "\ufeff"

// maxJSONLine bounds one JSON-lines record.
const maxJSONLine = 64 << 20

// source yields records with their 1-based position in the input. A
// *normalizer.RowError means the record is unreadable but the input can go on.
type source interface {
	Next() (normalizer.Record, int, error)
}

type csvSource struct {
	r      *csv.Reader
	header []string
	row    int
}

// newCSVSource reads and validates the header row. Columns the schema does
// not know are logged and carried through to the document.
func newCSVSource(r io.Reader, s *schema.Schema, format string) (*csvSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	if err := validateHeader(header, s, format); err != nil {
		return nil, err
	}
	return &csvSource{r: cr, header: header, row: 1}, nil
}

func validateHeader(header []string, s *schema.Schema, format string) error {
	seen := make(map[string]bool, len(header))
	for i, col := range header {
		col = strings.TrimSpace(col)
		header[i] = col
		if col == "" {
			return fmt.Errorf("csv header: column %d has no name", i+1)
		}
		if seen[col] {
			return fmt.Errorf("csv header: duplicate column %q", col)
		}
		seen[col] = true
		if _, ok := s.Field(col); !ok && col != query.IDField {
			log.Warnw("[Pipeline] csv column is not a field of the search", "search", s.ID(), "column", col)
		}
	}
	if seen[query.IDField] || (format != "" && format != schema.DefaultFormat) {
		return nil
	}
	for _, f := range s.IDFields() {
		if !seen[f] {
			return fmt.Errorf("csv header: identifier column %q is missing", f)
		}
	}
	return nil
}

func (c *csvSource) Next() (normalizer.Record, int, error) {
	values, err := c.r.Read()
	c.row++
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, c.row, &normalizer.RowError{Row: c.row, Err: err}
		}
		return nil, c.row, err
	}
	rec := make(normalizer.Record, len(c.header))
	for i, col := range c.header {
		if i < len(values) {
			rec[col] = values[i]
		}
	}
	return rec, c.row, nil
}

type jsonlSource struct {
	sc   *bufio.Scanner
	line int
}

func newJSONLSource(r io.Reader) *jsonlSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxJSONLine)
	return &jsonlSource{sc: sc}
}

func (j *jsonlSource) Next() (normalizer.Record, int, error) {
	for j.sc.Scan() {
		j.line++
		line := j.sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		rec, err := normalizer.ParseJSONLine(line)
		if err != nil {
			return nil, j.line, &normalizer.RowError{Row: j.line, Err: err}
		}
		return rec, j.line, nil
	}
	if err := j.sc.Err(); err != nil {
		return nil, j.line, err
	}
	return nil, j.line, io.EOF
}
