package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/maltedev/glamify-scraper/internal/extractor"
)

// Item is a record together with where it was found.
type Item struct {
	Record    extractor.Record
	SourceURL string
	Platform  string
}

// Sink consumes extracted items.
type Sink interface {
	Write(ctx context.Context, item Item) error
	Close() error
}

// JSONLinesWriter writes one JSON object per line.
type JSONLinesWriter struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

func NewJSONLinesWriter(w io.Writer) *JSONLinesWriter {
	return &JSONLinesWriter{w: w, enc: json.NewEncoder(w)}
}

func (j *JSONLinesWriter) Write(_ context.Context, item Item) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.enc.Encode(item.Record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func (j *JSONLinesWriter) Close() error {
	if c, ok := j.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// JSONArrayWriter writes records as a single JSON array to a file. Output
// goes to a temp file that replaces the target on Close.
type JSONArrayWriter struct {
	mu       sync.Mutex
	filename string
	tmp      *os.File
	count    int
	closed   bool
}

func NewJSONArrayWriter(filename string) (*JSONArrayWriter, error) {
	tmp, err := os.Create(filename + ".tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create feed file: %w", err)
	}

	if _, err := tmp.WriteString("["); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write feed file: %w", err)
	}

	return &JSONArrayWriter{filename: filename, tmp: tmp}, nil
}

func (j *JSONArrayWriter) Write(_ context.Context, item Item) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return errors.New("feed writer is closed")
	}

	data, err := json.Marshal(item.Record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	sep := ",\n"
	if j.count == 0 {
		sep = "\n"
	}

	if _, err := j.tmp.WriteString(sep); err != nil {
		return err
	}
	if _, err := j.tmp.Write(data); err != nil {
		return err
	}

	j.count++
	return nil
}

// Count returns how many records were written so far.
func (j *JSONArrayWriter) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

func (j *JSONArrayWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if _, err := j.tmp.WriteString("\n]\n"); err != nil {
		j.tmp.Close()
		return err
	}

	if err := j.tmp.Close(); err != nil {
		return err
	}

	return os.Rename(j.tmp.Name(), j.filename)
}

// MultiSink fans every item out to all sinks, stopping at the first error.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, item Item) error {
	for _, s := range m {
		if err := s.Write(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open returns a file sink for format "json" or "jsonl".
func Open(path, format string) (Sink, error) {
	switch format {
	case "json":
		return NewJSONArrayWriter(path)
	case "jsonl":
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create feed file: %w", err)
		}
		return NewJSONLinesWriter(f), nil
	default:
		return nil, fmt.Errorf("unsupported feed format %q", format)
	}
}
