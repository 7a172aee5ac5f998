package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// maxPhotoSize caps listing photo and avatar uploads at 10MB
const maxPhotoSize = 10 * 1024 * 1024

// S3Uploader handles photo uploads to AWS S3
type S3Uploader struct {
	client  *s3.Client
	bucket  string
	region  string
	baseURL string
}

// UploadResult contains the result of an S3 upload
type UploadResult struct {
	Key    string `json:"key"`
	URL    string `json:"url"`
	Bucket string `json:"bucket"`
	Region string `json:"region"`
	Size   int64  `json:"size"`
}

// NewS3Uploader creates a new S3 uploader
func NewS3Uploader(region, bucket, baseURL string) (*S3Uploader, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)

	return &S3Uploader{
		client:  client,
		bucket:  bucket,
		region:  region,
		baseURL: baseURL,
	}, nil
}

// UploadListingPhoto uploads a listing photo to S3 with proper naming and metadata
func (u *S3Uploader) UploadListingPhoto(ctx context.Context, file multipart.File, header *multipart.FileHeader, userID string) (*UploadResult, error) {
	if header.Size > maxPhotoSize {
		return nil, fmt.Errorf("photo too large: %d bytes (max %d)", header.Size, maxPhotoSize)
	}

	data, err := io.ReadAll(io.LimitReader(file, maxPhotoSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxPhotoSize {
		return nil, fmt.Errorf("photo too large (max %d bytes)", maxPhotoSize)
	}

	extension := strings.ToLower(filepath.Ext(header.Filename))
	if extension == "" {
		extension = ".jpg"
	}

	// Organized folder structure: listings/{year}/{month}/{userID}/{fileID}.jpg
	now := time.Now()
	fileID := uuid.New().String()
	key := fmt.Sprintf("listings/%d/%02d/%s/%s%s",
		now.Year(), now.Month(), userID, fileID, extension)

	return u.putObject(ctx, key, data, extension, map[string]string{
		"user-id":           userID,
		"original-filename": header.Filename,
		"upload-timestamp":  now.Format(time.RFC3339),
		"file-type":         "listing-photo",
	})
}

// UploadAvatar uploads a user avatar image
func (u *S3Uploader) UploadAvatar(ctx context.Context, file multipart.File, header *multipart.FileHeader, userID string) (*UploadResult, error) {
	if header.Size > maxPhotoSize {
		return nil, fmt.Errorf("photo too large: %d bytes (max %d)", header.Size, maxPhotoSize)
	}

	data, err := io.ReadAll(io.LimitReader(file, maxPhotoSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxPhotoSize {
		return nil, fmt.Errorf("photo too large (max %d bytes)", maxPhotoSize)
	}

	extension := strings.ToLower(filepath.Ext(header.Filename))
	if extension == "" {
		extension = ".jpg"
	}

	key := fmt.Sprintf("avatars/%s/%s%s", userID, uuid.New().String(), extension)

	return u.putObject(ctx, key, data, extension, map[string]string{
		"user-id":           userID,
		"original-filename": header.Filename,
		"upload-timestamp":  time.Now().Format(time.RFC3339),
		"file-type":         "avatar",
	})
}

// putObject performs the actual S3 upload and builds the public URL
func (u *S3Uploader) putObject(ctx context.Context, key string, data []byte, extension string, metadata map[string]string) (*UploadResult, error) {
	putObjectInput := &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(getContentTypeForImage(extension)),

		// Photos are immutable once uploaded
		CacheControl: aws.String("max-age=86400"),

		Metadata: metadata,

		// Note: no ACL - bucket policy handles public access
	}

	if _, err := u.client.PutObject(ctx, putObjectInput); err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	publicURL := fmt.Sprintf("%s/%s", strings.TrimSuffix(u.baseURL, "/"), key)

	return &UploadResult{
		Key:    key,
		URL:    publicURL,
		Bucket: u.bucket,
		Region: u.region,
		Size:   int64(len(data)),
	}, nil
}

// DeleteFile deletes a file from S3
func (u *S3Uploader) DeleteFile(ctx context.Context, key string) error {
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	return nil
}

// CheckBucketAccess verifies that we can access the S3 bucket
func (u *S3Uploader) CheckBucketAccess(ctx context.Context) error {
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(u.bucket),
	})
	if err != nil {
		return fmt.Errorf("cannot access S3 bucket %s: %w", u.bucket, err)
	}

	return nil
}

// getContentTypeForImage returns the appropriate MIME type for image extensions
func getContentTypeForImage(extension string) string {
	switch strings.ToLower(extension) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	default:
		return "application/octet-stream"
	}
}
