package purgo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// tableFormat is the on-disk encoding of a table, chosen by file extension.
type tableFormat int

const (
	formatCSV tableFormat = iota
	formatJSON
	formatSQLite
)

func (f tableFormat) String() string {
	switch f {
	case formatCSV:
		return "csv"
	case formatJSON:
		return "json"
	case formatSQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// formatOf picks the table format from the extension of p. Query strings
// of bucket URLs are ignored.
func formatOf(p string) (tableFormat, error) {
	switch ext := extOf(p); ext {
	case ".csv":
		return formatCSV, nil
	case ".json":
		return formatJSON, nil
	case ".db", ".sqlite", ".sqlite3":
		return formatSQLite, nil
	default:
		return 0, NewInvalidValueError("path", p, fmt.Sprintf("unsupported file extension %q, expected .csv, .json, .db, .sqlite or .sqlite3", ext))
	}
}

// extOf returns the lower-cased extension of p without any query string.
func extOf(p string) string {
	clean, _, _ := strings.Cut(p, "?")
	return strings.ToLower(path.Ext(clean))
}

// location is where a table lives: a local file or a key in a bucket.
type location struct {
	// bucketURL is empty for local files.
	bucketURL string
	key       string
}

// parseLocation splits p into a bucket URL and a key. Plain paths, including
// Windows drive letters, are local files.
func parseLocation(p string) (location, error) {
	u, err := url.Parse(p)
	if err != nil || len(u.Scheme) < 2 {
		return location{key: p}, nil //nolint:nilerr // not a URL, a local path
	}

	if u.Scheme == "file" {
		dir, base := path.Split(u.Path)
		if base == "" {
			return location{}, NewInvalidValueError("path", p, "file URL must name a file")
		}
		return location{bucketURL: "file://" + path.Clean(dir), key: base}, nil
	}

	bucket := u.Scheme + "://" + u.Host
	if u.RawQuery != "" {
		bucket += "?" + u.RawQuery
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return location{}, NewInvalidValueError("path", p, "bucket URL must name a key")
	}
	return location{bucketURL: bucket, key: key}, nil
}

// buckets resolves locations to bucket contents. It either uses a single
// bucket given by the caller, which it never closes, or opens buckets by URL
// on demand and keeps them open until Close.
type buckets struct {
	mu       sync.Mutex
	injected *blob.Bucket
	opened   map[string]*blob.Bucket
}

func (b *buckets) bucketFor(ctx context.Context, loc location) (*blob.Bucket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bucket, ok := b.opened[loc.bucketURL]; ok {
		return bucket, nil
	}
	bucket, err := blob.OpenBucket(ctx, loc.bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %q: %w", loc.bucketURL, err)
	}
	if b.opened == nil {
		b.opened = make(map[string]*blob.Bucket)
	}
	b.opened[loc.bucketURL] = bucket
	return bucket, nil
}

// resolve returns the bucket and key for p, or a nil bucket for a local file.
func (b *buckets) resolve(ctx context.Context, p string) (*blob.Bucket, string, error) {
	if b.injected != nil {
		return b.injected, strings.TrimPrefix(p, "/"), nil
	}
	loc, err := parseLocation(p)
	if err != nil {
		return nil, "", err
	}
	if loc.bucketURL == "" {
		return nil, loc.key, nil
	}
	bucket, err := b.bucketFor(ctx, loc)
	if err != nil {
		return nil, "", err
	}
	return bucket, loc.key, nil
}

func (b *buckets) readAll(ctx context.Context, p string) ([]byte, error) {
	bucket, key, err := b.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	if bucket == nil {
		data, err := os.ReadFile(key)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", NewNotFoundError("file", key), err)
		}
		return data, err
	}

	data, err := bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %w", NewNotFoundError("key", key), err)
		}
		return nil, err
	}
	return data, nil
}

func (b *buckets) writeAll(ctx context.Context, p string, data []byte) error {
	bucket, key, err := b.resolve(ctx, p)
	if err != nil {
		return err
	}
	if bucket == nil {
		if dir := filepath.Dir(key); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		return os.WriteFile(key, data, 0o644)
	}
	return bucket.WriteAll(ctx, key, data, nil)
}

// close closes the buckets opened by URL. An injected bucket belongs to the caller.
func (b *buckets) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for bucketURL, bucket := range b.opened {
		if err := bucket.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close bucket %q: %w", bucketURL, err))
		}
	}
	b.opened = nil
	return errors.Join(errs...)
}
