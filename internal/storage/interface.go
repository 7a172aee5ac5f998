package storage

import (
	"context"
	"mime/multipart"
)

// PhotoUploader defines the interface for uploading listing photos and
// avatars. This interface allows for easy mocking in tests.
type PhotoUploader interface {
	UploadListingPhoto(ctx context.Context, file multipart.File, header *multipart.FileHeader, userID string) (*UploadResult, error)
	UploadAvatar(ctx context.Context, file multipart.File, header *multipart.FileHeader, userID string) (*UploadResult, error)
	DeleteFile(ctx context.Context, key string) error
}

// Ensure S3Uploader implements PhotoUploader
var _ PhotoUploader = (*S3Uploader)(nil)
