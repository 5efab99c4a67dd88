package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"oc-search-go/internal/engine"
)

// failedDocument is one line of the error file. Doc can be re-submitted as is.
type failedDocument struct {
	Error string          `json:"error"`
	Doc   engine.Document `json:"doc"`
}

// errorSink writes failed batches to a JSON-lines side file, created on the
// first failure.
type errorSink struct {
	dir      string
	searchID string
	path     string
	file     *os.File
	enc      *json.Encoder
}

func newErrorSink(dir, searchID string) *errorSink {
	if dir == "" {
		dir = "."
	}
	return &errorSink{dir: dir, searchID: searchID}
}

func (s *errorSink) Write(batch []engine.Document, cause error) error {
	if s.file == nil {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("create error dir: %w", err)
		}
		name := fmt.Sprintf("%s_errors_%s.jsonl", s.searchID, time.Now().Format("20060102T150405"))
		f, err := os.Create(filepath.Join(s.dir, name))
		if err != nil {
			return fmt.Errorf("create error file: %w", err)
		}
		s.file, s.path, s.enc = f, f.Name(), json.NewEncoder(f)
	}
	for _, doc := range batch {
		if err := s.enc.Encode(failedDocument{Error: cause.Error(), Doc: doc}); err != nil {
			return fmt.Errorf("write error file: %w", err)
		}
	}
	return nil
}

// Path returns the error file path, empty when nothing failed.
func (s *errorSink) Path() string { return s.path }

func (s *errorSink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
