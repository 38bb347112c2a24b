// Package s3 stores collections as objects in an S3-compatible bucket. The
// object ETag is the concurrency token.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kalambet/aide/internal/storage"
)

// Config locates the bucket.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	UseSSL    bool
	AccessKey string
	SecretKey string
	// Prefix is prepended to every collection path.
	Prefix string
}

// Store is a storage.Backend over minio-go.
type Store struct {
	client *minio.Client
	cfg    Config
}

func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("s3 credentials are required")
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 client: %w", err)
	}
	return &Store{client: client, cfg: cfg}, nil
}

func (s *Store) key(path string) string {
	return s.cfg.Prefix + path
}

func (s *Store) Fetch(ctx context.Context, path string) (storage.Blob, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, s.key(path), minio.GetObjectOptions{})
	if err != nil {
		return storage.Blob{}, classify(err)
	}
	defer obj.Close()

	// Stat issues the request; errors such as NoSuchKey surface here.
	info, err := obj.Stat()
	if err != nil {
		return storage.Blob{}, classify(err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return storage.Blob{}, classify(err)
	}
	return storage.Blob{Data: data, Token: storage.Token(info.ETag)}, nil
}

// Put replaces the object only if its ETag still matches token. S3 offers no
// atomic create-if-absent here, so a create checks for the object first and
// can race with a concurrent create.
func (s *Store) Put(ctx context.Context, path string, data []byte, token storage.Token, message string) (storage.Token, error) {
	opts := minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{"commit-message": message},
	}

	if token == "" {
		_, err := s.client.StatObject(ctx, s.cfg.Bucket, s.key(path), minio.StatObjectOptions{})
		if err == nil {
			return "", storage.ErrConflict
		}
		if err := classify(err); !errors.Is(err, storage.ErrNotExist) {
			return "", err
		}
	} else {
		opts.SetMatchETag(string(token))
	}

	info, err := s.client.PutObject(ctx, s.cfg.Bucket, s.key(path), bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		err = classify(err)
		// A conditional write against a vanished object is still a lost update.
		if token != "" && errors.Is(err, storage.ErrNotExist) {
			return "", storage.ErrConflict
		}
		return "", err
	}
	return storage.Token(info.ETag), nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    s.cfg.Prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, classify(obj.Err)
		}
		keys = append(keys, obj.Key[len(s.cfg.Prefix):])
	}
	return keys, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return classify(err)
	}
	if !ok {
		return fmt.Errorf("bucket %q does not exist", s.cfg.Bucket)
	}
	return nil
}

// classify maps S3 error codes onto the storage sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey":
		return fmt.Errorf("%w: %v", storage.ErrNotExist, err)
	case "PreconditionFailed":
		return fmt.Errorf("%w: %v", storage.ErrConflict, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("%w: %v", storage.ErrUnauthorized, err)
	}
	return fmt.Errorf("s3: %w", err)
}
