package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

const presignExpiry = 15 * time.Minute

type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ObjectStore holds uploaded document files in an S3-compatible bucket and
// hands out presigned URLs so the dashboard never proxies file bytes.
type ObjectStore struct {
	client     *minio.Client
	bucketName string
	region     string
	initOnce   sync.Once
	initErr    error
}

func NewObjectStore(cfg Config) (*ObjectStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, errors.New("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init s3 client")
	}

	return &ObjectStore{
		client:     client,
		bucketName: bucket,
		region:     region,
	}, nil
}

func (s *ObjectStore) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// ObjectPath builds the bucket key for a document file.
func ObjectPath(categoryID, documentName, documentType string) string {
	return fmt.Sprintf("%s/%s.%s", categoryID, documentName, documentType)
}

func (s *ObjectStore) PresignedDownloadURL(ctx context.Context, objectPath string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", errors.Wrap(err, "ensure bucket")
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, objectPath, presignExpiry, url.Values{})
	if err != nil {
		return "", errors.Wrap(err, "presign download")
	}
	return u.String(), nil
}

func (s *ObjectStore) PresignedUploadURL(ctx context.Context, objectPath string) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", errors.Wrap(err, "ensure bucket")
	}
	u, err := s.client.PresignedPutObject(ctx, s.bucketName, objectPath, presignExpiry)
	if err != nil {
		return "", errors.Wrap(err, "presign upload")
	}
	return u.String(), nil
}
