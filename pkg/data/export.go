package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	exportFilePrefix = "md5_analysis_history_"
	schemaFile       = "schema/history.schema.json"
)

var (
	snapshotSchema     *jsonschema.Schema
	snapshotSchemaErr  error
	snapshotSchemaOnce sync.Once
)

// ExportFileName is the dated name of a history snapshot file.
func ExportFileName(t time.Time) string {
	return exportFilePrefix + t.Format(time.DateOnly) + ".json"
}

// Export writes the full history, newest first, as an indented JSON array.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	list, err := s.ListEntries(ctx, ListFilter{})
	if err != nil {
		return fmt.Errorf("listing history: %w", err)
	}

	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	if err := e.Encode(list); err != nil {
		return fmt.Errorf("encoding history snapshot: %w", err)
	}
	return nil
}

// Import validates a snapshot produced by Export and merges its entries
// into the history by timestamp. Entries already present are skipped.
// Returns the number of entries added.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDBNotInitialized
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("reading snapshot: %w", err)
	}

	list, err := ParseSnapshot(b)
	if err != nil {
		return 0, err
	}

	// snapshot is newest first, insert oldest first
	slices.Reverse(list)

	n, err := s.appendEntries(ctx, list)
	if err != nil {
		return 0, fmt.Errorf("importing snapshot: %w", err)
	}
	return n, nil
}

// ParseSnapshot validates raw snapshot JSON against the history schema and
// decodes it.
func ParseSnapshot(b []byte) ([]*Entry, error) {
	schema, err := getSnapshotSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}

	list := make([]*Entry, 0)
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return list, nil
}

func getSnapshotSchema() (*jsonschema.Schema, error) {
	snapshotSchemaOnce.Do(func() {
		b, err := f.ReadFile(schemaFile)
		if err != nil {
			snapshotSchemaErr = fmt.Errorf("reading snapshot schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource(schemaFile, bytes.NewReader(b)); err != nil {
			snapshotSchemaErr = fmt.Errorf("adding snapshot schema: %w", err)
			return
		}
		snapshotSchema, snapshotSchemaErr = compiler.Compile(schemaFile)
	})
	return snapshotSchema, snapshotSchemaErr
}
