package archive

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"yellowsdk/internal/logging"
)

const defaultB2Endpoint = "s3.us-east-005.backblazeb2.com"

// B2Object is the subset of *minio.Object the storage reads through.
type B2Object interface {
	io.ReadCloser
	Stat() (minio.ObjectInfo, error)
}

// B2Client is the subset of the minio client the storage needs.
type B2Client interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (B2Object, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
}

type minioClient struct {
	*minio.Client
}

func (c minioClient) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (B2Object, error) {
	return c.Client.GetObject(ctx, bucket, key, opts)
}

// B2Storage implements Storage on Backblaze B2 (or any S3-compatible store).
type B2Storage struct {
	client B2Client
	bucket string
	prefix string
}

// B2Config holds configuration for B2 storage.
type B2Config struct {
	Endpoint string // defaults to the us-east-005 B2 endpoint
	KeyID    string
	AppKey   string
	Bucket   string
	Prefix   string // optional folder prefix for all objects
}

// NewB2Storage creates a new B2-backed storage.
func NewB2Storage(cfg B2Config) (*B2Storage, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultB2Endpoint
	}
	logging.Archive.Printf("initializing storage (bucket=%s, prefix=%s, endpoint=%s)", cfg.Bucket, cfg.Prefix, endpoint)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.KeyID, cfg.AppKey, ""),
		Secure: true,
	})
	if err != nil {
		logging.Archive.Printf("failed to create client: %v", err)
		return nil, err
	}

	return NewB2StorageWithClient(minioClient{client}, cfg.Bucket, cfg.Prefix), nil
}

// NewB2StorageWithClient wires a storage to an existing client.
func NewB2StorageWithClient(client B2Client, bucket, prefix string) *B2Storage {
	return &B2Storage{
		client: client,
		bucket: bucket,
		prefix: strings.TrimSuffix(prefix, "/"),
	}
}

func (s *B2Storage) key(id string) string {
	if s.prefix == "" {
		return id + ".json"
	}
	return path.Join(s.prefix, id+".json")
}

func (s *B2Storage) Save(ctx context.Context, id string, data io.Reader) (int64, error) {
	if err := validateID(id); err != nil {
		return 0, err
	}
	key := s.key(id)

	info, err := s.client.PutObject(ctx, s.bucket, key, data, -1, minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		logging.Archive.Printf("upload failed for %s: %v", key, err)
		return 0, err
	}

	logging.Archive.Printf("archived %s (%d bytes)", key, info.Size)
	return info.Size, nil
}

func (s *B2Storage) Load(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	key := s.key(id)

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		logging.Archive.Printf("failed to get object %s: %v", key, err)
		return nil, err
	}

	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		logging.Archive.Printf("failed to stat object %s: %v", key, err)
		return nil, err
	}
	return obj, nil
}

func (s *B2Storage) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	key := s.key(id)

	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ErrNotFound
		}
		logging.Archive.Printf("failed to delete %s: %v", key, err)
		return err
	}
	return nil
}
