package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/felo/eml-extract/internal/db"
	"github.com/felo/eml-extract/internal/logger"
	"github.com/felo/eml-extract/internal/mbox"
	"github.com/felo/eml-extract/internal/parser"
	"github.com/felo/eml-extract/internal/scanner"
	"github.com/google/uuid"
)

// Settings written after every run.
const (
	SettingLastRun   = "last_index_run"
	SettingLastRunID = "last_index_run_id"
)

// Indexer handles message indexing operations
type Indexer struct {
	db          *db.DB
	scanner     *scanner.Scanner
	log         *slog.Logger
	opts        Options
	concurrency int // Number of concurrent workers
}

// NewIndexer creates a new indexer for the .eml and .mbox files below emailsPath
func NewIndexer(database *db.DB, emailsPath string, log *slog.Logger) *Indexer {
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{
		db:          database,
		scanner:     scanner.NewScanner(emailsPath),
		log:         log,
		opts:        DefaultOptions(),
		concurrency: runtime.NumCPU() * 2, // 2x CPUs for optimal I/O parallelism
	}
}

// WithConcurrency sets the number of concurrent workers
func (idx *Indexer) WithConcurrency(workers int) *Indexer {
	if workers < 1 {
		workers = 1
	}
	idx.concurrency = workers
	return idx
}

// WithOptions sets the parse and projection options
func (idx *Indexer) WithOptions(opts Options) *Indexer {
	idx.opts = opts
	return idx
}

// IndexResult contains statistics about an indexing operation. Files are the
// unit of work; messages are counted individually since an mbox holds many.
type IndexResult struct {
	RunID            string        `json:"run_id"`
	TotalFound       int           `json:"total_found"`
	NewIndexed       int           `json:"new_indexed"`
	Skipped          int           `json:"skipped"`
	Failed           int           `json:"failed"`
	ProjectionErrors int           `json:"projection_errors"`
	Bytes            int64         `json:"bytes"`
	FailedFiles      []string      `json:"failed_files"`
	Duration         time.Duration `json:"duration_ns"`
}

// ProgressFunc is called once per finished file
type ProgressFunc func(current, total int, filePath string)

// IndexAll scans and indexes all message files using concurrent workers
func (idx *Indexer) IndexAll(ctx context.Context) (*IndexResult, error) {
	return idx.IndexWithProgress(ctx, nil)
}

// IndexWithProgress indexes all files and reports progress via a callback. When
// ctx is cancelled no further files are dispatched; the partial result is returned
// with ctx's error.
func (idx *Indexer) IndexWithProgress(ctx context.Context, progress ProgressFunc) (*IndexResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = logger.WithAttrs(ctx, slog.String("run_id", runID))

	files, err := idx.scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan for files: %w", err)
	}

	result := &IndexResult{
		RunID:       runID,
		TotalFound:  len(files),
		FailedFiles: make([]string, 0),
	}

	idx.log.InfoContext(ctx, "indexing started",
		"root", idx.scanner.GetRootPath(), "files", len(files), "workers", idx.concurrency)

	indexed, err := idx.db.SourcesIndexed(emlFiles(files))
	if err != nil {
		return nil, err
	}

	fileChan := make(chan string)
	resultChan := make(chan fileResult, idx.concurrency)

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < idx.concurrency; i++ {
		wg.Add(1)
		go idx.indexWorker(ctx, &wg, fileChan, resultChan)
	}

	// Send files to workers, skipping .eml files stored by an earlier run
	go func() {
		defer close(fileChan)
		for _, file := range files {
			if indexed[file] {
				select {
				case resultChan <- fileResult{filePath: file, skipped: 1}:
					continue
				case <-ctx.Done():
					return
				}
			}
			select {
			case fileChan <- file:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Wait for all workers to finish
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	processedCount := 0
	for res := range resultChan {
		processedCount++
		if progress != nil {
			progress(processedCount, result.TotalFound, res.filePath)
		}
		result.add(res)
	}
	result.Duration = time.Since(start)

	idx.log.InfoContext(ctx, "indexing complete",
		"new", result.NewIndexed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"projection_errors", result.ProjectionErrors,
		"size", humanize.Bytes(uint64(result.Bytes)),
		"duration", result.Duration.Round(time.Millisecond))

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if err := idx.db.SetSetting(SettingLastRun, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return result, err
	}
	if err := idx.db.SetSetting(SettingLastRunID, runID); err != nil {
		return result, err
	}

	return result, nil
}

// fileResult is the outcome of one source file
type fileResult struct {
	filePath         string
	indexed          int
	skipped          int
	failed           int
	projectionErrors int
	bytes            int64
}

func (r *IndexResult) add(res fileResult) {
	r.NewIndexed += res.indexed
	r.Skipped += res.skipped
	r.Failed += res.failed
	r.ProjectionErrors += res.projectionErrors
	r.Bytes += res.bytes
	if res.failed > 0 {
		r.FailedFiles = append(r.FailedFiles, res.filePath)
	}
}

func emlFiles(files []string) []string {
	var out []string
	for _, f := range files {
		if scanner.KindOf(f) == scanner.KindEML {
			out = append(out, f)
		}
	}
	return out
}

// indexWorker processes files from the file channel
func (idx *Indexer) indexWorker(ctx context.Context, wg *sync.WaitGroup, fileChan <-chan string, resultChan chan<- fileResult) {
	defer wg.Done()

	for filePath := range fileChan {
		resultChan <- idx.processFile(ctx, filePath)
	}
}

// processFile indexes every message of a single source file
func (idx *Indexer) processFile(ctx context.Context, filePath string) fileResult {
	res := fileResult{filePath: filePath}
	ctx = logger.WithAttrs(ctx, slog.String("source", filePath))
	fullPath := idx.scanner.Resolve(filePath)

	switch scanner.KindOf(filePath) {
	case scanner.KindEML:
		msg, err := parser.ParseEMLFile(fullPath, idx.opts.Parse)
		if err != nil {
			idx.log.WarnContext(ctx, "parse failed", "error", err)
			res.failed++
			return res
		}
		idx.store(ctx, &res, filePath, 0, msg)

	case scanner.KindMbox:
		err := mbox.EachFile(ctx, fullPath, func(index int, raw []byte) error {
			exists, err := idx.db.MessageExists(filePath, index)
			if err != nil {
				return err
			}
			if exists {
				res.skipped++
				return nil
			}
			msg, err := parser.ParseWithOptions(raw, idx.opts.Parse)
			if err != nil {
				idx.log.WarnContext(ctx, "parse failed", "index", index, "error", err)
				res.failed++
				return nil
			}
			idx.store(ctx, &res, filePath, index, msg)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			idx.log.WarnContext(ctx, "mbox read failed", "error", err)
			res.failed++
		}
	}

	return res
}

// store saves one parsed message and tallies the outcome into res
func (idx *Indexer) store(ctx context.Context, res *fileResult, sourcePath string, sourceIndex int, msg *parser.Message) {
	for _, w := range msg.Warnings() {
		idx.log.DebugContext(ctx, "parse warning", "index", sourceIndex, "warning", w)
	}

	rec, attachments, err := NewRecord(msg, idx.opts)
	if err != nil {
		idx.log.WarnContext(ctx, "projection failed", "index", sourceIndex, "error", err)
		res.failed++
		return
	}
	rec.SourcePath = sourcePath
	rec.SourceIndex = sourceIndex

	if rec.ProjectionError != "" {
		idx.log.InfoContext(ctx, "incomplete projection", "index", sourceIndex, "error", rec.ProjectionError)
		res.projectionErrors++
	}

	if _, err := idx.db.InsertMessage(rec, attachments); err != nil {
		idx.log.WarnContext(ctx, "store failed", "index", sourceIndex, "error", err)
		res.failed++
		return
	}

	res.indexed++
	res.bytes += rec.Size
}
