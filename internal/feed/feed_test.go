package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/maltedev/glamify-scraper/internal/extractor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLinesWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLinesWriter(&buf)
	ctx := context.Background()

	require.NoError(t, w.Write(ctx, Item{Record: extractor.Record{"name": "Serum", "price": "120"}}))
	require.NoError(t, w.Write(ctx, Item{Record: extractor.Record{"name": "Toner"}}))
	require.NoError(t, w.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"name":"Serum","price":"120"}`, lines[0])
	assert.JSONEq(t, `{"name":"Toner"}`, lines[1])
}

func TestJSONArrayWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	ctx := context.Background()

	w, err := NewJSONArrayWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Write(ctx, Item{Record: extractor.Record{"name": "Serum"}}))
	require.NoError(t, w.Write(ctx, Item{Record: extractor.Record{"name": "Toner", "brand": "Glowco"}}))
	assert.Equal(t, 2, w.Count())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "target is only written on close")

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []map[string]string
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Equal(t, []map[string]string{
		{"name": "Serum"},
		{"name": "Toner", "brand": "Glowco"},
	}, records)

	assert.Error(t, w.Write(ctx, Item{Record: extractor.Record{}}))
}

func TestJSONArrayWriter_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")

	w, err := NewJSONArrayWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []map[string]string
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Empty(t, records)
}

type failingSink struct{ closed bool }

func (f *failingSink) Write(context.Context, Item) error { return errors.New("disk full") }
func (f *failingSink) Close() error {
	f.closed = true
	return nil
}

func TestMultiSink(t *testing.T) {
	var buf bytes.Buffer
	failing := &failingSink{}
	sink := MultiSink{NewJSONLinesWriter(&buf), failing}

	err := sink.Write(context.Background(), Item{Record: extractor.Record{"name": "Serum"}})
	assert.EqualError(t, err, "disk full")
	assert.Contains(t, buf.String(), "Serum")

	require.NoError(t, sink.Close())
	assert.True(t, failing.closed)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(filepath.Join(dir, "a.jsonl"), "jsonl")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(filepath.Join(dir, "a.json"), "json")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(filepath.Join(dir, "a.xml"), "xml")
	assert.Error(t, err)
}
