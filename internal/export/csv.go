// Package export writes frame records and session summaries to files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ayusman/nayana/internal/record"
)

// DefaultFlushEvery is the number of records written between flushes.
const DefaultFlushEvery = 100

// CSVWriter writes frame records as CSV rows in record.Header order. The header
// is written once, before the first row.
type CSVWriter struct {
	mu      sync.Mutex
	w       *csv.Writer
	closer  io.Closer
	every   int
	pending int
}

// NewCSVWriter creates a writer that flushes to w every `every` records.
func NewCSVWriter(w io.Writer, every int) (*CSVWriter, error) {
	if every < 1 {
		every = DefaultFlushEvery
	}
	c := &CSVWriter{w: csv.NewWriter(w), every: every}
	if closer, ok := w.(io.Closer); ok {
		c.closer = closer
	}
	if err := c.w.Write(record.Header()); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return c, nil
}

// CreateCSV creates (or truncates) the file at path, including parent
// directories, and returns a writer for it.
func CreateCSV(path string, every int) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	c, err := NewCSVWriter(f, every)
	if err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

// Write appends one record.
func (c *CSVWriter) Write(rec record.FrameRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.w.Write(rec.CSVRow()); err != nil {
		return err
	}
	c.pending++
	if c.pending < c.every {
		return nil
	}
	return c.flushLocked()
}

// Flush writes any buffered rows to the underlying writer.
func (c *CSVWriter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

// Close flushes and closes the underlying writer if it is closable.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.flushLocked()
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
		c.closer = nil
	}
	return err
}

func (c *CSVWriter) flushLocked() error {
	c.w.Flush()
	c.pending = 0
	return c.w.Error()
}

// RecordSource streams the stored records of a session.
type RecordSource interface {
	Each(sessionID string, fn func(record.FrameRecord) error) error
}

// WriteSession writes every stored record of a session as CSV to w.
func WriteSession(w io.Writer, src RecordSource, sessionID string) error {
	c, err := NewCSVWriter(w, DefaultFlushEvery)
	if err != nil {
		return err
	}
	if err := src.Each(sessionID, c.Write); err != nil {
		return fmt.Errorf("failed to export session %s: %w", sessionID, err)
	}
	return c.Flush()
}
