package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds the connection settings for an S3-compatible store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Object user metadata keys. MinIO returns them canonicalized.
const (
	metaFileName  = "File-Name"
	metaCategory  = "Category"
	metaOwnerID   = "Owner-Id"
	metaCreatedBy = "Created-By"
	metaHash      = "Sha256"
)

// MinioBlobStore keeps blobs as objects keyed by blob id in one bucket.
type MinioBlobStore struct {
	client *minio.Client
	bucket string
}

func NewMinioBlobStore(ctx context.Context, cfg MinioConfig) (*MinioBlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinioBlobStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *MinioBlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}

	_, err = s.client.PutObject(ctx, s.bucket, meta.ID, bytes.NewReader(data), meta.Size, minio.PutObjectOptions{
		ContentType:  meta.ContentType,
		UserMetadata: toUserMetadata(meta),
		UserTags:     meta.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", meta.ID, err)
	}
	return &meta, nil
}

func (s *MinioBlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	meta, err := s.GetMetadata(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("get object %s: %w", id, err)
	}
	return obj, meta, nil
}

func (s *MinioBlobStore) Delete(ctx context.Context, id string) error {
	if _, err := s.GetMetadata(ctx, id); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, id, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", id, err)
	}
	return nil
}

func (s *MinioBlobStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	info, err := s.client.StatObject(ctx, s.bucket, id, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("stat object %s: %w", id, err)
	}
	return fromObjectInfo(id, info), nil
}

func toUserMetadata(meta BlobMetadata) map[string]string {
	return map[string]string{
		metaFileName:  meta.FileName,
		metaCategory:  meta.Category,
		metaOwnerID:   meta.OwnerID,
		metaCreatedBy: meta.CreatedBy,
		metaHash:      meta.Hash,
	}
}

func fromObjectInfo(id string, info minio.ObjectInfo) *BlobMetadata {
	um := info.UserMetadata
	meta := &BlobMetadata{
		ID:          id,
		FileName:    um[metaFileName],
		ContentType: info.ContentType,
		Size:        info.Size,
		Category:    um[metaCategory],
		OwnerID:     um[metaOwnerID],
		Hash:        um[metaHash],
		CreatedAt:   info.LastModified.UTC(),
		CreatedBy:   um[metaCreatedBy],
		Tags:        info.UserTags,
	}
	if meta.FileName == "" {
		meta.FileName = id
	}
	return meta
}
