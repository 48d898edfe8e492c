package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSFetcher downloads invoice sources from Google Cloud Storage.
type GCSFetcher struct {
	client *storage.Client
	logger *slog.Logger
}

// NewGCSFetcher uses application default credentials.
func NewGCSFetcher(ctx context.Context, logger *slog.Logger) (*GCSFetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSFetcher{client: client, logger: logger}, nil
}

func (f *GCSFetcher) Close() error {
	return f.client.Close()
}

func (f *GCSFetcher) Fetch(ctx context.Context, bucket, prefix, dir string) ([]string, error) {
	it := f.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") || !AllowedExt(path.Ext(attrs.Name)) {
			continue
		}
		local := filepath.Join(dir, filepath.FromSlash(attrs.Name))
		if err := f.download(ctx, bucket, attrs.Name, local); err != nil {
			return out, err
		}
		f.logger.Debug("ingest.gcs.downloaded", "bucket", bucket, "object", attrs.Name, "bytes", attrs.Size)
		out = append(out, local)
	}
	return out, nil
}

func (f *GCSFetcher) download(ctx context.Context, bucket, object, local string) error {
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}
	rc, err := f.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("open gs://%s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	tmp := local + ".part"
	w, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, rc); err != nil {
		_ = w.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("download gs://%s/%s: %w", bucket, object, err)
	}
	if err := w.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, local)
}
