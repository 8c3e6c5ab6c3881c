// Package idcard stores the student ID-card images uploaded at signup.
package idcard

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Storage persists an uploaded ID card and returns where it lives.
type Storage interface {
	Save(ctx context.Context, name, contentType string, data []byte) (string, error)
	Remove(ctx context.Context, location string) error
}

// New selects a backend by name: local, cloudinary or s3.
func New(ctx context.Context, backend string, opts Options) (Storage, error) {
	switch strings.ToLower(backend) {
	case "", "local":
		return NewLocalStorage(opts.UploadRoot), nil
	case "cloudinary":
		if opts.CloudinaryCloudName == "" || opts.CloudinaryAPIKey == "" || opts.CloudinaryAPISecret == "" {
			return nil, fmt.Errorf("idcard: cloudinary credentials are not configured")
		}
		return NewCloudinaryStorage(opts.CloudinaryCloudName, opts.CloudinaryAPIKey, opts.CloudinaryAPISecret, "id_cards"), nil
	case "s3":
		if opts.S3Bucket == "" {
			return nil, fmt.Errorf("idcard: s3 bucket is not configured")
		}
		return NewS3Storage(ctx, opts.S3Bucket, "id_cards")
	default:
		return nil, fmt.Errorf("idcard: unknown storage backend %q", backend)
	}
}

// Options carries the settings each backend needs.
type Options struct {
	UploadRoot          string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	S3Bucket            string
}

func stem(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}
