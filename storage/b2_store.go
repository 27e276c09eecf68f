package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/kurin/blazer/b2"
	"go.uber.org/zap"

	"groupdrive/utils"
)

type B2Store struct {
	client     *b2.Client
	bucketName string
	bucket     *b2.Bucket
	urlExpiry  time.Duration
}

func NewB2Store(ctx context.Context, keyID, applicationKey, bucketName string, urlExpiry time.Duration) (*B2Store, error) {
	client, err := b2.NewClient(ctx, keyID, applicationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create B2 client: %w", err)
	}

	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", bucketName, err)
	}

	if urlExpiry <= 0 {
		urlExpiry = DefaultURLExpiry
	}

	return &B2Store{
		client:     client,
		bucketName: bucketName,
		bucket:     bucket,
		urlExpiry:  urlExpiry,
	}, nil
}

func (s *B2Store) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	writer := s.bucket.Object(key).NewWriter(ctx)

	// Stream straight through to B2 while hashing for the log line.
	hasher := sha1.New()
	written, err := io.Copy(io.MultiWriter(writer, hasher), r)
	if err != nil {
		writer.Close()
		return "", fmt.Errorf("failed to upload %s to B2: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close B2 writer: %w", err)
	}
	if size >= 0 && written != size {
		utils.LogWarning("B2 upload size mismatch",
			zap.String("key", key), zap.Int64("declared", size), zap.Int64("written", written))
	}

	utils.L().Debug("uploaded object to B2",
		zap.String("key", key),
		zap.Int64("bytes", written),
		zap.String("sha1", hex.EncodeToString(hasher.Sum(nil))))

	return s.URL(ctx, key)
}

func (s *B2Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj := s.bucket.Object(key)
	if _, err := obj.Attrs(ctx); err != nil {
		if b2.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to stat %s in B2: %w", key, err)
	}
	return obj.NewReader(ctx), nil
}

// URL generates a signed download URL for the private bucket.
func (s *B2Store) URL(ctx context.Context, key string) (string, error) {
	urlObj, err := s.bucket.Object(key).AuthURL(ctx, s.urlExpiry, "")
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return urlObj.String(), nil
}

func (s *B2Store) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Object(key).Delete(ctx); err != nil {
		if b2.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file from B2: %w", err)
	}
	return nil
}
