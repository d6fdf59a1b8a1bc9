package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/yanqian/support-copilot/internal/domain/support"
)

const objectScheme = "s3://"

// ObjectOpener reads a single object from a bucket.
type ObjectOpener interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Loader imports knowledge base records from a file or an object store.
type Loader struct {
	objects ObjectOpener
	logger  *slog.Logger
}

// NewLoader constructs a loader. objects may be nil when only local files are used.
func NewLoader(objects ObjectOpener, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{objects: objects, logger: logger.With("component", "seed.loader")}
}

// Seed reads records from location and upserts them into repo.
// It returns how many records were stored; invalid entries are skipped.
func (l *Loader) Seed(ctx context.Context, location string, repo support.Repository) (int, error) {
	records, err := l.Load(ctx, location)
	if err != nil {
		return 0, err
	}
	stored := 0
	for i, record := range records {
		if err := record.Validate(); err != nil {
			l.logger.Warn("skipping seed record", "index", i, "id", record.ID, "error", err)
			continue
		}
		if _, err := repo.Upsert(ctx, record); err != nil {
			return stored, fmt.Errorf("store seed record %d: %w", i, err)
		}
		stored++
	}
	l.logger.Info("seed records imported", "location", location, "stored", stored, "skipped", len(records)-stored)
	return stored, nil
}

// Load reads and parses records from a local path or an s3://bucket/key location.
func (l *Loader) Load(ctx context.Context, location string) ([]support.Record, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errors.New("seed location cannot be empty")
	}
	reader, err := l.open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	records, err := Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", location, err)
	}
	return records, nil
}

func (l *Loader) open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, objectScheme) {
		file, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("open seed file: %w", err)
		}
		return file, nil
	}
	bucket, key, err := splitObjectLocation(location)
	if err != nil {
		return nil, err
	}
	if l.objects == nil {
		return nil, fmt.Errorf("seed %s requires object storage configuration", location)
	}
	reader, err := l.objects.Open(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("open seed object: %w", err)
	}
	return reader, nil
}

func splitObjectLocation(location string) (string, string, error) {
	rest := strings.TrimPrefix(location, objectScheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid object location %q, expected s3://bucket/key", location)
	}
	return bucket, key, nil
}

type seedDocument struct {
	Responses []support.Record `json:"responses"`
}

// Parse decodes either {"responses":[...]} or a bare JSON array of records.
func Parse(r io.Reader) ([]support.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []support.Record{}, nil
	}
	if data[0] == '[' {
		var records []support.Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
		return records, nil
	}
	var doc seedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Responses == nil {
		return []support.Record{}, nil
	}
	return doc.Responses, nil
}
