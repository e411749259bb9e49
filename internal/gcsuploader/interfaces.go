package gcsuploader

import (
	"context"
	"io"
)

// StorageService uploads objects to a storage bucket.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// Upload writes r to bucketName/objectName.
	Upload(ctx context.Context, bucketName, objectName, contentType string, r io.Reader) error
}

// GCSStorageService is the concrete implementation of StorageService
// that interacts with Google Cloud Storage.
type GCSStorageService struct{}

// NewGCSStorageService creates a new instance of GCSStorageService.
func NewGCSStorageService() *GCSStorageService {
	return &GCSStorageService{}
}

// Upload delegates to UploadObject.
func (s *GCSStorageService) Upload(ctx context.Context, bucketName, objectName, contentType string, r io.Reader) error {
	return UploadObject(ctx, bucketName, objectName, contentType, r)
}
