package record

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const objectFetchConcurrency = 8

// ObjectStoreConfig describes an S3-compatible bucket holding record objects.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// ObjectStore keeps records as objects in an S3-compatible bucket, using the
// same names as FileStore under an optional key prefix.
type ObjectStore struct {
	client *minio.Client
	bucket string
	prefix string

	now func() time.Time
}

// NewObjectStore connects to the bucket, creating it when missing.
func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	host, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	if host == "" {
		return nil, errors.New("object store: endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("object store: bucket is required")
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("object store: create client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("object store: check bucket: %w", err)
	}
	if !exists {
		if errMake := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); errMake != nil {
			return nil, fmt.Errorf("object store: create bucket: %w", errMake)
		}
		log.Infof("object store: created bucket %s", cfg.Bucket)
	}
	return &ObjectStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: normalizePrefix(cfg.Prefix),
		now:    time.Now,
	}, nil
}

// Append writes text stamped with the current time.
func (s *ObjectStore) Append(ctx context.Context, text string) (string, error) {
	return s.AppendAt(ctx, text, s.now())
}

// AppendAt writes text stamped with ts, choosing the first free name.
func (s *ObjectStore) AppendAt(ctx context.Context, text string, ts time.Time) (string, error) {
	data, err := Encode(New(text, ts))
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	for seq := 0; seq < maxSameSecondWrites; seq++ {
		name := FileName(ts, seq)
		key := s.prefix + name
		_, errStat := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		if errStat == nil {
			continue
		}
		if minio.ToErrorResponse(errStat).Code != "NoSuchKey" {
			return "", fmt.Errorf("object store: stat %s: %w", key, errStat)
		}
		_, errPut := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: "application/json; charset=utf-8",
		})
		if errPut != nil {
			return "", fmt.Errorf("object store: put %s: %w", key, errPut)
		}
		return name, nil
	}
	return "", fmt.Errorf("too many records created at %s", ts.Format(time.RFC3339))
}

// List fetches every record object under the prefix. Objects that cannot be
// fetched or decoded are skipped; a listing failure is returned.
func (s *ObjectStore) List(ctx context.Context) ([]Record, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("object store: list: %w", obj.Err)
		}
		if IsRecordFileName(path.Base(obj.Key)) {
			keys = append(keys, obj.Key)
		}
	}

	results := make([]*Record, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(objectFetchConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			rec, err := s.fetch(gctx, key)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.WithError(err).Debugf("object store: skip %s", key)
				return nil
			}
			results[i] = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(results))
	for _, rec := range results {
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *ObjectStore) fetch(ctx context.Context, key string) (Record, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = obj.Close() }()
	data, err := io.ReadAll(obj)
	if err != nil {
		return Record{}, err
	}
	return Decode(data)
}

// splitEndpoint strips an http(s) scheme, which minio expects as a flag.
func splitEndpoint(endpoint string, useSSL bool) (string, bool) {
	e := strings.TrimSpace(endpoint)
	switch {
	case strings.HasPrefix(e, "https://"):
		e, useSSL = strings.TrimPrefix(e, "https://"), true
	case strings.HasPrefix(e, "http://"):
		e, useSSL = strings.TrimPrefix(e, "http://"), false
	}
	return strings.TrimRight(e, "/"), useSSL
}

func normalizePrefix(prefix string) string {
	p := strings.Trim(strings.TrimSpace(prefix), "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
