package app

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/s3utils"
	log "github.com/sirupsen/logrus"
)

type ClientMinio interface {
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	SetBucketPolicy(ctx context.Context, bucketName, policy string) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type MinioS3Client struct {
	endpoint   string
	region     string
	publicBase string
	client     ClientMinio
}

const (
	defaultContentType = "application/octet-stream"
	publicReadACL      = "public-read"

	codeBucketOwned  = "BucketAlreadyOwnedByYou"
	codeBucketExists = "BucketAlreadyExists"
	codeNoSuchKey    = "NoSuchKey"
	codeNoSuchBucket = "NoSuchBucket"
)

// NewMinioS3Client creates a new MinioS3Client instance.
// publicBase is the prefix of media links; the endpoint URL is used when it is empty.
func NewMinioS3Client(endpoint, accessKeyID, secretAccessKey, region, publicBase string, useSSL bool) (*MinioS3Client, error) {
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Minio S3 client for %s: %w", endpoint, err)
	}
	if publicBase == "" {
		publicBase = minioClient.EndpointURL().String()
	}
	return NewMinioS3ClientWith(minioClient, endpoint, region, publicBase), nil
}

// NewMinioS3ClientWith wraps an already configured client.
func NewMinioS3ClientWith(client ClientMinio, endpoint, region, publicBase string) *MinioS3Client {
	return &MinioS3Client{
		endpoint:   endpoint,
		region:     region,
		publicBase: strings.TrimRight(publicBase, "/"),
		client:     client,
	}
}

func (s3 *MinioS3Client) CreateBucket(ctx context.Context, name string) error {
	if err := s3utils.CheckValidBucketName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	err := s3.client.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: s3.region})
	if err != nil {
		switch minio.ToErrorResponse(err).Code {
		case codeBucketOwned:
			// A previous create may have failed between MakeBucket and SetBucketPolicy.
			if err := s3.setPublicPolicy(ctx, name); err != nil {
				return err
			}
			return ErrAlbumExists
		case codeBucketExists:
			return ErrAlbumExists
		}
		return fmt.Errorf("make bucket %s: %w", name, err)
	}
	return s3.setPublicPolicy(ctx, name)
}

func (s3 *MinioS3Client) setPublicPolicy(ctx context.Context, name string) error {
	if err := s3.client.SetBucketPolicy(ctx, name, publicReadPolicy(name)); err != nil {
		return fmt.Errorf("set public policy on %s: %w", name, err)
	}
	return nil
}

func (s3 *MinioS3Client) BucketExists(ctx context.Context, name string) (bool, error) {
	if s3utils.CheckValidBucketName(name) != nil {
		return false, nil
	}
	return s3.client.BucketExists(ctx, name)
}

func (s3 *MinioS3Client) ListBuckets(ctx context.Context) ([]string, error) {
	buckets, err := s3.client.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(buckets))
	for _, bucket := range buckets {
		result = append(result, bucket.Name)
	}
	return result, nil
}

// UploadFile uploads a local file to the bucket with a public-read ACL.
func (s3 *MinioS3Client) UploadFile(ctx context.Context, bucket, key, path string, metadata map[string]string) (ObjectInfo, error) {
	if err := s3utils.CheckValidObjectName(key); err != nil {
		return ObjectInfo{}, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	userMetadata := map[string]string{"x-amz-acl": publicReadACL}
	for k, v := range metadata {
		userMetadata[k] = v
	}
	info, err := s3.client.FPutObject(ctx, bucket, key, path, minio.PutObjectOptions{
		ContentType:  contentTypeOf(key),
		UserMetadata: userMetadata,
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}
	return ObjectInfo{
		Name:      info.Key,
		Size:      info.Size,
		MediaLink: s3.mediaLink(bucket, info.Key),
	}, nil
}

func (s3 *MinioS3Client) ListObjects(ctx context.Context, bucket string) ([]ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make([]ObjectInfo, 0)
	objectCh := s3.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true})
	for object := range objectCh {
		if object.Err != nil {
			log.Errorf("list %s: %v", bucket, object.Err)
			return nil, object.Err
		}
		result = append(result, ObjectInfo{
			Name:      object.Key,
			Size:      object.Size,
			MediaLink: s3.mediaLink(bucket, object.Key),
		})
	}
	return result, nil
}

func (s3 *MinioS3Client) CopyObject(ctx context.Context, srcBucket, dstBucket, key string) error {
	_, err := s3.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dstBucket, Object: key},
		minio.CopySrcOptions{Bucket: srcBucket, Object: key})
	if err != nil {
		switch minio.ToErrorResponse(err).Code {
		case codeNoSuchKey:
			return ErrImageNotFound
		case codeNoSuchBucket:
			return ErrAlbumNotFound
		}
		return err
	}
	return nil
}

// DeleteObject removes the object. RemoveObject alone does not report missing keys, so it is checked first.
func (s3 *MinioS3Client) DeleteObject(ctx context.Context, bucket, key string) error {
	if _, err := s3.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		switch minio.ToErrorResponse(err).Code {
		case codeNoSuchKey:
			return ErrImageNotFound
		case codeNoSuchBucket:
			return ErrAlbumNotFound
		}
		return fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}
	if err := s3.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s/%s: %w", bucket, key, err)
	}
	log.Debugf("removed %s/%s", bucket, key)
	return nil
}

func (s3 *MinioS3Client) mediaLink(bucket, key string) string {
	if s3.publicBase == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s", s3.publicBase, bucket, url.PathEscape(key))
}

func contentTypeOf(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return defaultContentType
}

// publicReadPolicy allows anonymous GET on every object of the bucket.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": map[string]interface{}{"AWS": []string{"*"}},
				"Action":    []string{"s3:GetObject"},
				"Resource":  []string{fmt.Sprintf("arn:aws:s3:::%s/*", bucket)},
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
