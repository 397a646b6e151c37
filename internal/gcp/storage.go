package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// NewBucket creates a Storage client and returns a handle to bucketName.
// The caller owns the client and must close it.
func NewBucket(ctx context.Context, bucketName string) (*storage.Client, *storage.BucketHandle, error) {
	if bucketName == "" {
		return nil, nil, fmt.Errorf("bucket name must be provided")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return client, client.Bucket(bucketName), nil
}
