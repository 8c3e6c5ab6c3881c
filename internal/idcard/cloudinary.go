package idcard

import (
	"context"
	"path"

	"geoattend/internal/cloudinary"
)

// CloudinaryStorage uploads ID cards to a Cloudinary folder.
type CloudinaryStorage struct {
	client *cloudinary.Client
}

func NewCloudinaryStorage(cloudName, apiKey, apiSecret, folder string) *CloudinaryStorage {
	return &CloudinaryStorage{client: cloudinary.New(cloudName, apiKey, apiSecret, folder)}
}

func (s *CloudinaryStorage) Save(ctx context.Context, name, _ string, data []byte) (string, error) {
	res, err := s.client.UploadBytes(ctx, data, name, stem(name))
	if err != nil {
		return "", err
	}
	return res.SecureURL, nil
}

// Remove destroys the image behind a secure URL returned by Save.
func (s *CloudinaryStorage) Remove(ctx context.Context, location string) error {
	if location == "" {
		return nil
	}
	publicID := stem(location)
	if s.client.Folder != "" {
		publicID = path.Join(s.client.Folder, publicID)
	}
	return s.client.Destroy(ctx, publicID)
}
