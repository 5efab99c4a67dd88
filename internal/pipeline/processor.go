// Package pipeline streams source records through the normalizer into the
// search engine in fixed-size batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"oc-search-go/internal/config"
	"oc-search-go/internal/engine"
	"oc-search-go/internal/metrics"
	"oc-search-go/internal/normalizer"
	"oc-search-go/internal/query"
	"oc-search-go/internal/schema"
	"oc-search-go/pkg/log"
)

// Mode selects what is removed from the index before loading.
type Mode string

const (
	// ModeAppend keeps every existing document.
	ModeAppend Mode = "append"
	// ModeFormat removes the documents of the loaded record shape only.
	ModeFormat Mode = "format"
	// ModePurge removes every document of the application.
	ModePurge Mode = "purge"
)

// ParseMode validates a caller-supplied mode. There is no default.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAppend, ModeFormat, ModePurge:
		return m, nil
	}
	return "", fmt.Errorf("unknown import mode %q, expected purge, format or append", s)
}

// Indexer is the part of the engine client the importer writes through.
type Indexer interface {
	BulkIndex(ctx context.Context, index string, docs []engine.Document) error
	DeleteByQuery(ctx context.Context, index string, filters []query.Filter) error
	Commit(ctx context.Context, index string) error
}

// Options configures one import run.
type Options struct {
	Format string
	Mode   Mode
	Hooks  normalizer.RecordHooks
}

// Summary reports the outcome of an import run.
type Summary struct {
	Read      int
	Indexed   int
	Skipped   int
	Failed    int
	RowErrors int
	Warnings  int
	// ErrorFile is the side file holding failed batches, empty when none failed.
	ErrorFile string
}

// Processor runs imports against one engine.
type Processor struct {
	indexer    Indexer
	batchSize  int
	maxText    int
	maxRetries int
	retryDelay time.Duration
	errorDir   string
	sleep      func(time.Duration)
}

// NewProcessor creates a Processor using the import tunables of cfg.
func NewProcessor(indexer Indexer, cfg config.ImportConfig) *Processor {
	p := &Processor{
		indexer:    indexer,
		batchSize:  cfg.BatchSize,
		maxText:    cfg.MaxTextLength,
		maxRetries: cfg.MaxRetries,
		retryDelay: time.Duration(cfg.RetryDelaySeconds) * time.Second,
		errorDir:   cfg.ErrorDir,
		sleep:      time.Sleep,
	}
	if p.batchSize <= 0 {
		p.batchSize = 1000
	}
	if p.maxRetries <= 0 {
		p.maxRetries = 1
	}
	return p
}

// ImportCSV loads a CSV file whose header row names the fields.
func (p *Processor) ImportCSV(ctx context.Context, s *schema.Schema, r io.Reader, opts Options) (*Summary, error) {
	src, err := newCSVSource(r, s, opts.Format)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, s, src, opts)
}

// ImportJSONL loads one package object per line.
func (p *Processor) ImportJSONL(ctx context.Context, s *schema.Schema, r io.Reader, opts Options) (*Summary, error) {
	return p.run(ctx, s, newJSONLSource(r), opts)
}

func (p *Processor) run(ctx context.Context, s *schema.Schema, src source, opts Options) (*Summary, error) {
	index := s.IndexName()
	n := normalizer.New(s, normalizer.Options{Format: opts.Format, MaxTextLength: p.maxText, Hooks: opts.Hooks})
	log.Infof("[Pipeline] import started, search: %s, index: %s, format: %s, mode: %s", s.ID(), index, n.Format(), opts.Mode)

	if err := p.purge(ctx, index, n.Format(), opts.Mode); err != nil {
		return nil, err
	}

	sum := &Summary{}
	sink := newErrorSink(p.errorDir, s.ID())
	defer sink.Close()

	batch := make([]engine.Document, 0, p.batchSize)
	for {
		rec, row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var rowErr *normalizer.RowError
		if errors.As(err, &rowErr) {
			sum.Read++
			sum.RowErrors++
			sum.Skipped++
			log.Warnf("[Pipeline] unreadable record skipped: %v", rowErr)
			metrics.ImportDocumentsTotal.WithLabelValues(s.ID(), "skipped").Inc()
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("read source: %w", err)
		}
		sum.Read++

		res := n.Normalize(row, rec)
		sum.RowErrors += len(res.Errors)
		sum.Warnings += len(res.Warnings)
		for _, e := range res.Errors {
			log.Warnf("[Pipeline] %v", e)
		}
		if res.Doc == nil {
			sum.Skipped++
			metrics.ImportDocumentsTotal.WithLabelValues(s.ID(), "skipped").Inc()
			continue
		}

		batch = append(batch, res.Doc)
		if len(batch) >= p.batchSize {
			p.flush(ctx, s.ID(), index, batch, sum, sink)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		p.flush(ctx, s.ID(), index, batch, sum, sink)
	}
	sum.ErrorFile = sink.Path()

	if err := p.withRetry(ctx, "commit", func() error { return p.indexer.Commit(ctx, index) }); err != nil {
		return sum, fmt.Errorf("commit %s: %w", index, err)
	}
	log.Infof("[Pipeline] import finished, search: %s, read: %d, indexed: %d, skipped: %d, failed: %d",
		s.ID(), sum.Read, sum.Indexed, sum.Skipped, sum.Failed)
	return sum, nil
}

func (p *Processor) purge(ctx context.Context, index, format string, mode Mode) error {
	var err error
	switch mode {
	case ModePurge:
		log.Infof("[Pipeline] purging every document of %s", index)
		err = p.indexer.DeleteByQuery(ctx, index, nil)
	case ModeFormat:
		log.Infof("[Pipeline] purging %s documents of %s", format, index)
		err = p.indexer.DeleteByQuery(ctx, index, []query.Filter{{Field: normalizer.FormatField, Values: []string{format}}})
	case ModeAppend:
		return nil
	default:
		return fmt.Errorf("import mode is required")
	}
	if err != nil {
		return fmt.Errorf("purge %s: %w", index, err)
	}
	return nil
}

// flush indexes batch, retrying transport failures with a linear backoff.
// A batch that still fails goes to the error file and the import continues.
func (p *Processor) flush(ctx context.Context, searchID, index string, batch []engine.Document, sum *Summary, sink *errorSink) {
	err := p.withRetry(ctx, "bulk index", func() error { return p.indexer.BulkIndex(ctx, index, batch) })
	if err == nil {
		sum.Indexed += len(batch)
		metrics.ImportDocumentsTotal.WithLabelValues(searchID, "indexed").Add(float64(len(batch)))
		log.Infof("[Pipeline] sent %d documents to %s", len(batch), index)
		return
	}

	sum.Failed += len(batch)
	metrics.ImportDocumentsTotal.WithLabelValues(searchID, "failed").Add(float64(len(batch)))
	metrics.ImportFailedBatchesTotal.WithLabelValues(searchID).Inc()
	log.Errorf("[Pipeline] batch of %d documents failed, first id: %s, error: %v", len(batch), batch[0].ID(), err)
	if werr := sink.Write(batch, err); werr != nil {
		log.Error("[Pipeline] cannot write error file", werr)
	}
	if errors.Is(err, engine.ErrTransport) {
		// give the engine time to recover before the next batch
		p.sleep(p.retryDelay)
	}
}

func (p *Processor) withRetry(ctx context.Context, op string, call func() error) error {
	var err error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		if err = call(); err == nil || !errors.Is(err, engine.ErrTransport) {
			return err
		}
		if attempt == p.maxRetries || ctx.Err() != nil {
			break
		}
		log.Warnf("[Pipeline] %s failed (attempt %d/%d), retrying: %v", op, attempt, p.maxRetries, err)
		p.sleep(time.Duration(attempt) * p.retryDelay)
	}
	return err
}
