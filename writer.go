package purgo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
)

// WriterStepName is the name of the built-in writer step.
const WriterStepName = "write"

// Writer stores KeyTrainTable at KeyOutputPath and, when KeyTestOutputPath
// is set, KeyTestTable there. Outputs are .csv files or SQLite databases
// (.db, .sqlite, .sqlite3), whose KeyTableName table is replaced. Paths are
// resolved like the Reader's.
type Writer struct {
	name    string
	buckets buckets
}

var (
	_ Step   = (*Writer)(nil)
	_ Closer = (*Writer)(nil)
)

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterName overrides the step name.
func WithWriterName(name string) WriterOption {
	return func(w *Writer) {
		if name != "" {
			w.name = name
		}
	}
}

// WithWriterBucket writes every path as a key of bucket. The bucket is not
// closed by the writer.
func WithWriterBucket(bucket *blob.Bucket) WriterOption {
	return func(w *Writer) {
		w.buckets.injected = bucket
	}
}

// NewWriter creates a writer step.
func NewWriter(options ...WriterOption) *Writer {
	w := &Writer{name: WriterStepName}
	for _, option := range options {
		option(w)
	}
	return w
}

// Name implements the Step interface.
func (w *Writer) Name() string {
	return w.name
}

// Run implements the Step interface.
func (w *Writer) Run(ctx context.Context, params *Params) error {
	dst, found, err := params.String(KeyOutputPath)
	if err != nil {
		return err
	}
	if !found || strings.TrimSpace(dst) == "" {
		return NewArgumentsError("%q is required to write the training table", KeyOutputPath)
	}

	train, found, err := params.Table(KeyTrainTable)
	if err != nil {
		return err
	}
	if !found {
		return NewArgumentsError("%q is required, is the reader part of the pipeline?", KeyTrainTable)
	}

	table, _, err := params.String(KeyTableName)
	if err != nil {
		return err
	}
	if table == "" {
		table = DefaultTableName
	}

	if err := w.write(ctx, dst, table, train); err != nil {
		return fmt.Errorf("failed to write %q: %w", dst, err)
	}
	LoggerFromContext(ctx).DebugContext(ctx, "table written", "path", dst, "table", train.String())

	testDst, found, err := params.String(KeyTestOutputPath)
	if err != nil {
		return err
	}
	if !found || strings.TrimSpace(testDst) == "" {
		return nil
	}

	test, found, err := params.Table(KeyTestTable)
	if err != nil {
		return err
	}
	if !found {
		Warn(ctx, w.name, fmt.Sprintf("%q is set but there is no %q to write", KeyTestOutputPath, KeyTestTable))
		return nil
	}
	if err := w.write(ctx, testDst, table, test); err != nil {
		return fmt.Errorf("failed to write %q: %w", testDst, err)
	}
	LoggerFromContext(ctx).DebugContext(ctx, "table written", "path", testDst, "table", test.String())
	return nil
}

// WriteTable stores t the way Run does, outside of a pipeline.
func (w *Writer) WriteTable(ctx context.Context, dst, table string, t *Table) error {
	if table == "" {
		table = DefaultTableName
	}
	return w.write(ctx, dst, table, t)
}

func (w *Writer) write(ctx context.Context, dst, table string, t *Table) error {
	format, err := formatOf(dst)
	if err != nil {
		return err
	}

	switch format {
	case formatCSV:
		data, err := encodeCSV(t)
		if err != nil {
			return err
		}
		return w.buckets.writeAll(ctx, dst, data)
	case formatSQLite:
		return w.writeSQLite(ctx, dst, table, t)
	default:
		return NewInvalidValueError("path", dst, fmt.Sprintf("writing %s tables is not supported", format))
	}
}

func (w *Writer) writeSQLite(ctx context.Context, dst, table string, t *Table) error {
	bucket, key, err := w.buckets.resolve(ctx, dst)
	if err != nil {
		return err
	}

	if bucket == nil {
		if dir := filepath.Dir(key); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		return writeSQLite(ctx, key, table, t)
	}

	// Update a copy of the existing database so other tables survive.
	var existing []byte
	if ok, err := bucket.Exists(ctx, key); err != nil {
		return err
	} else if ok {
		if existing, err = bucket.ReadAll(ctx, key); err != nil {
			return err
		}
	}

	return withLocalCopy(existing, func(file string) error {
		if err := writeSQLite(ctx, file, table, t); err != nil {
			return err
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		return bucket.WriteAll(ctx, key, data, nil)
	})
}

// Close closes the buckets the writer opened by URL.
func (w *Writer) Close(_ context.Context) error {
	return w.buckets.close()
}
