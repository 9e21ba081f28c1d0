// Copyright 2024 The brewer Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package publish

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config locates the mirror bucket. Values are used as given; the
// caller trims and defaults them.
type S3Config struct {
	Endpoint  string // host[:port], no scheme
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Mirror uploads published files to an S3-compatible bucket. The bucket
// is created on the first upload when missing.
type S3Mirror struct {
	client *minio.Client
	bucket string
	region string

	once    sync.Once
	bootErr error
}

// NewS3Mirror connects to the bucket described by cfg. No request is sent
// before the first Upload.
func NewS3Mirror(cfg S3Config) (*S3Mirror, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 mirror %s: %w", cfg.Endpoint, err)
	}
	return &S3Mirror{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

func (s *S3Mirror) ensureBucket(ctx context.Context) error {
	s.once.Do(func() {
		ok, err := s.client.BucketExists(ctx, s.bucket)
		switch {
		case err != nil:
			s.bootErr = err
		case !ok:
			s.bootErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
		}
		if s.bootErr != nil {
			s.bootErr = fmt.Errorf("s3 bucket %s: %w", s.bucket, s.bootErr)
		}
	})
	return s.bootErr
}

// Upload stores the file at path under key.
func (s *S3Mirror) Upload(ctx context.Context, key, path string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.FPutObject(ctx, s.bucket, key, path, minio.PutObjectOptions{ContentType: contentType})
	return err
}
