// Package blobstore stores billing artifacts: uploaded remittance files,
// generated EDI batches and error reports. It defines the BlobStore
// interface, an in-memory implementation for tests and development, and a
// MinIO-backed implementation.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed blob size in bytes (100 MB).
const MaxFileSize = 100 * 1024 * 1024

const (
	CategoryRemittanceUpload = "remittance-upload"
	CategoryClaimEDI         = "claim-edi"
	CategoryErrorReport      = "error-report"
)

// BlobMetadata describes a stored blob.
type BlobMetadata struct {
	ID          string            `json:"id"`
	FileName    string            `json:"file_name"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Category    string            `json:"category"`
	OwnerID     string            `json:"owner_id,omitempty"`
	Hash        string            `json:"hash"`
	CreatedAt   time.Time         `json:"created_at"`
	CreatedBy   string            `json:"created_by,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// BlobStore defines the contract for blob storage backends.
type BlobStore interface {
	Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*BlobMetadata, error)
}

// prepare validates meta, reads content up to MaxFileSize and stamps the
// id, size, hash and creation time shared by every backend.
func prepare(meta BlobMetadata, content io.Reader) (BlobMetadata, []byte, error) {
	if meta.FileName == "" {
		return meta, nil, ErrMissingFileName
	}
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return meta, nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return meta, nil, ErrFileTooLarge
	}
	sum := sha256.Sum256(data)

	meta.ID = uuid.NewString()
	meta.Size = int64(len(data))
	meta.Hash = hex.EncodeToString(sum[:])
	meta.CreatedAt = time.Now().UTC()
	return meta, data, nil
}

// InMemoryBlobStore keeps blobs in a map. It backs development runs where
// the API server and the worker share one process, and tests.
type InMemoryBlobStore struct {
	mu   sync.RWMutex
	meta map[string]BlobMetadata
	data map[string][]byte
}

func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		meta: make(map[string]BlobMetadata),
		data: make(map[string][]byte),
	}
}

func (s *InMemoryBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.meta[meta.ID] = meta
	s.data[meta.ID] = data
	s.mu.Unlock()
	return &meta, nil
}

func (s *InMemoryBlobStore) lookup(id string) (BlobMetadata, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.meta[id]
	if !ok {
		return BlobMetadata{}, nil, ErrBlobNotFound
	}
	return meta, s.data[id], nil
}

func (s *InMemoryBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	meta, data, err := s.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), &meta, nil
}

func (s *InMemoryBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	meta, _, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meta[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.meta, id)
	delete(s.data, id)
	return nil
}

// Len reports the number of stored blobs.
func (s *InMemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.meta)
}

// Serve streams a blob as an attachment response.
func Serve(c echo.Context, store BlobStore, id string) error {
	rc, meta, err := store.Download(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}
