// Package resource opens the files read and written by item components. A location is a
// local path, a file:// URI or a gs://bucket/object URI.
package resource

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	config "github.com/tigerroll/chunkflow/pkg/batch/core/config"
	exception "github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

const gcsScheme = "gs://"

// Location is a parsed resource address.
type Location struct {
	// Bucket is empty for local files.
	Bucket string
	// Path is the object name for gs:// and the file path otherwise.
	Path string
}

// IsGCS reports whether l names a Cloud Storage object.
func (l Location) IsGCS() bool { return l.Bucket != "" }

func (l Location) String() string {
	if l.IsGCS() {
		return gcsScheme + l.Bucket + "/" + l.Path
	}
	return l.Path
}

// Parse splits uri into a Location.
func Parse(uri string) (Location, error) {
	switch {
	case strings.HasPrefix(uri, gcsScheme):
		bucket, object, ok := strings.Cut(strings.TrimPrefix(uri, gcsScheme), "/")
		if !ok || bucket == "" || object == "" {
			return Location{}, fmt.Errorf("invalid gcs uri '%s': want gs://bucket/object", uri)
		}
		return Location{Bucket: bucket, Path: object}, nil
	case strings.HasPrefix(uri, "file://"):
		uri = strings.TrimPrefix(uri, "file://")
	}
	if uri == "" {
		return Location{}, fmt.Errorf("empty resource location")
	}
	return Location{Path: filepath.Clean(uri)}, nil
}

// Resources opens readers and writers on local files and Cloud Storage objects. The
// storage client is created on first use of a gs:// location.
type Resources struct {
	cfg config.GCSConfig

	mu     sync.Mutex
	client *storage.Client
}

// New creates Resources with the storage settings in cfg.
func New(cfg *config.Config) *Resources {
	return &Resources{cfg: cfg.Chunkflow.Storage.GCS}
}

// Open returns a reader over uri.
func (r *Resources) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	loc, err := Parse(uri)
	if err != nil {
		return nil, exception.NewBatchError("resource", "invalid location", err, false, false)
	}
	if !loc.IsGCS() {
		f, err := os.Open(loc.Path)
		if err != nil {
			return nil, exception.NewBatchError("resource", fmt.Sprintf("failed to open '%s'", loc), err, false, false)
		}
		return f, nil
	}
	client, err := r.storageClient(ctx)
	if err != nil {
		return nil, err
	}
	rc, err := client.Bucket(loc.Bucket).Object(loc.Path).NewReader(ctx)
	if err != nil {
		return nil, exception.NewBatchError("resource", fmt.Sprintf("failed to open '%s'", loc), err, false, true)
	}
	return rc, nil
}

// Create returns a writer that replaces uri. Local parent directories are created. A
// Cloud Storage object becomes visible only when the writer is closed.
func (r *Resources) Create(ctx context.Context, uri string) (io.WriteCloser, error) {
	loc, err := Parse(uri)
	if err != nil {
		return nil, exception.NewBatchError("resource", "invalid location", err, false, false)
	}
	if !loc.IsGCS() {
		if err := os.MkdirAll(filepath.Dir(loc.Path), 0o755); err != nil {
			return nil, exception.NewBatchError("resource", fmt.Sprintf("failed to create directory for '%s'", loc), err, false, false)
		}
		f, err := os.Create(loc.Path)
		if err != nil {
			return nil, exception.NewBatchError("resource", fmt.Sprintf("failed to create '%s'", loc), err, false, false)
		}
		return f, nil
	}
	client, err := r.storageClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.Bucket(loc.Bucket).Object(loc.Path).NewWriter(ctx), nil
}

// Append returns a writer positioned at the end of the local file uri, creating it when
// missing. Cloud Storage objects cannot be appended to.
func (r *Resources) Append(ctx context.Context, uri string) (io.WriteCloser, error) {
	loc, err := Parse(uri)
	if err != nil {
		return nil, exception.NewBatchError("resource", "invalid location", err, false, false)
	}
	if loc.IsGCS() {
		return nil, exception.NewBatchErrorf("resource", "cannot append to '%s'", loc)
	}
	if err := os.MkdirAll(filepath.Dir(loc.Path), 0o755); err != nil {
		return nil, exception.NewBatchError("resource", fmt.Sprintf("failed to create directory for '%s'", loc), err, false, false)
	}
	f, err := os.OpenFile(loc.Path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, exception.NewBatchError("resource", fmt.Sprintf("failed to open '%s' for append", loc), err, false, false)
	}
	return f, nil
}

func (r *Resources) storageClient(ctx context.Context) (*storage.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}
	var opts []option.ClientOption
	if r.cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(r.cfg.CredentialsFile))
	}
	if r.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(r.cfg.Endpoint))
	}
	if r.cfg.WithoutAuthentication {
		opts = append(opts, option.WithoutAuthentication())
	}
	client, err := storage.NewClient(context.WithoutCancel(ctx), opts...)
	if err != nil {
		return nil, exception.NewBatchError("resource", "failed to create cloud storage client", err, false, false)
	}
	logger.Infof("Resources: cloud storage client created (endpoint=%q).", r.cfg.Endpoint)
	r.client = client
	return client, nil
}

// Close releases the storage client, if any.
func (r *Resources) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}
