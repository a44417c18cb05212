package purgo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gocloud.dev/blob"
)

// ReaderStepName is the name of the built-in reader step.
const ReaderStepName = "read"

// Reader is the built-in step inserted at position 0 of every pipeline.
// It loads the table at KeyDataSourcePath into KeyTrainTable and, when
// KeyTestDataSourcePath is set, the table there into KeyTestTable.
//
// Sources are picked by extension (.csv, .json, .db, .sqlite, .sqlite3).
// Plain paths are local files; URLs such as file:///data/train.csv,
// gs://bucket/train.csv or s3://bucket/train.csv?region=eu-west-1 are read
// through gocloud.dev/blob. SQLite sources take the table name from
// KeyTableName, DefaultTableName by default.
type Reader struct {
	name    string
	buckets buckets
}

var (
	_ Step   = (*Reader)(nil)
	_ Closer = (*Reader)(nil)
)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderName overrides the step name. Other steps positioned relative
// to "read" will then need the new name.
func WithReaderName(name string) ReaderOption {
	return func(r *Reader) {
		if name != "" {
			r.name = name
		}
	}
}

// WithReaderBucket reads every path as a key of bucket instead of resolving
// it. The bucket is not closed by the reader.
func WithReaderBucket(bucket *blob.Bucket) ReaderOption {
	return func(r *Reader) {
		r.buckets.injected = bucket
	}
}

// NewReader creates the built-in reader step.
func NewReader(options ...ReaderOption) *Reader {
	r := &Reader{name: ReaderStepName}
	for _, option := range options {
		option(r)
	}
	return r
}

// Name implements the Step interface.
func (r *Reader) Name() string {
	return r.name
}

// Run implements the Step interface.
func (r *Reader) Run(ctx context.Context, params *Params) error {
	src, found, err := params.String(KeyDataSourcePath)
	if err != nil {
		return err
	}
	if !found || strings.TrimSpace(src) == "" {
		return NewArgumentsError("%q is required to read the data source", KeyDataSourcePath)
	}

	table, _, err := params.String(KeyTableName)
	if err != nil {
		return err
	}
	if table == "" {
		table = DefaultTableName
	}

	train, err := r.read(ctx, src, table)
	if err != nil {
		return fmt.Errorf("failed to read %q: %w", src, err)
	}
	params.Set(KeyTrainTable, train)
	LoggerFromContext(ctx).DebugContext(ctx, "table loaded", "path", src, "table", train.String())

	testSrc, found, err := params.String(KeyTestDataSourcePath)
	if err != nil {
		return err
	}
	if !found || strings.TrimSpace(testSrc) == "" {
		return nil
	}

	test, err := r.read(ctx, testSrc, table)
	if err != nil {
		return fmt.Errorf("failed to read %q: %w", testSrc, err)
	}
	params.Set(KeyTestTable, test)
	LoggerFromContext(ctx).DebugContext(ctx, "table loaded", "path", testSrc, "table", test.String())
	return nil
}

// ReadTable loads a single table the way Run does, outside of a pipeline.
func (r *Reader) ReadTable(ctx context.Context, src, table string) (*Table, error) {
	if table == "" {
		table = DefaultTableName
	}
	return r.read(ctx, src, table)
}

func (r *Reader) read(ctx context.Context, src, table string) (*Table, error) {
	format, err := formatOf(src)
	if err != nil {
		return nil, err
	}

	if format == formatSQLite {
		return r.readSQLite(ctx, src, table)
	}

	data, err := r.buckets.readAll(ctx, src)
	if err != nil {
		return nil, err
	}
	if format == formatJSON {
		return decodeJSON(data)
	}
	return decodeCSV(data)
}

func (r *Reader) readSQLite(ctx context.Context, src, table string) (*Table, error) {
	bucket, key, err := r.buckets.resolve(ctx, src)
	if err != nil {
		return nil, err
	}

	if bucket == nil {
		if _, err := os.Stat(key); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", NewNotFoundError("file", key), err)
		}
		return readSQLite(ctx, key, table)
	}

	data, err := r.buckets.readAll(ctx, src)
	if err != nil {
		return nil, err
	}
	var out *Table
	err = withLocalCopy(data, func(file string) error {
		var readErr error
		out, readErr = readSQLite(ctx, file, table)
		return readErr
	})
	return out, err
}

// Close closes the buckets the reader opened by URL.
func (r *Reader) Close(_ context.Context) error {
	return r.buckets.close()
}
