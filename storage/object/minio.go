package object

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/trezcool/walimu/core"
	"github.com/trezcool/walimu/core/document"
)

// minioBlobs stores document contents in an S3-compatible bucket.
type minioBlobs struct {
	client *minio.Client
	bucket string
}

var _ document.Blobs = (*minioBlobs)(nil)

func NewMinioBlobs(conf *core.Config) (document.Blobs, error) {
	client, err := minio.New(conf.ObjectStorage.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.ObjectStorage.AccessKey, conf.ObjectStorage.SecretKey, ""),
		Secure: conf.ObjectStorage.UseTLS,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connecting to object storage")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, conf.ObjectStorage.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "checking bucket")
	}
	if !exists {
		if err = client.MakeBucket(ctx, conf.ObjectStorage.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(err, "creating bucket")
		}
	}
	return &minioBlobs{client: client, bucket: conf.ObjectStorage.Bucket}, nil
}

func (b *minioBlobs) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return errors.Wrap(err, "storing object")
}

func (b *minioBlobs) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "fetching object")
	}
	return obj, nil
}

func (b *minioBlobs) Remove(ctx context.Context, key string) error {
	err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{})
	return errors.Wrap(err, "removing object")
}

func (b *minioBlobs) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := b.client.PresignedGetObject(ctx, b.bucket, key, expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, "presigning object URL")
	}
	return u.String(), nil
}
