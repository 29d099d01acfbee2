package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7/pkg/s3utils"
)

// S3API is the part of *s3.Client used by AWSS3Client.
type S3API interface {
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeletePublicAccessBlock(ctx context.Context, params *s3.DeletePublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.DeletePublicAccessBlockOutput, error)
	PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type (
	AWSClientConfig struct {
		// Endpoint is an optional S3-compatible endpoint URL, e.g. "http://localhost:9000".
		Endpoint        string
		Region          string
		AccessKeyID     string
		SecretAccessKey string
		UsePathStyle    bool
		PublicBase      string
	}

	// AWSS3Client is a Backend on top of aws-sdk-go-v2.
	AWSS3Client struct {
		region     string
		publicBase string
		client     S3API
	}
)

func NewAWSS3Client(ctx context.Context, cfg AWSClientConfig) (*AWSS3Client, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required for S3 client")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	publicBase := cfg.PublicBase
	if publicBase == "" && cfg.Endpoint != "" {
		publicBase = cfg.Endpoint
	}
	return NewAWSS3ClientWith(client, cfg.Region, publicBase), nil
}

// NewAWSS3ClientWith wraps an already configured client. With an empty publicBase
// media links use virtual-hosted AWS URLs.
func NewAWSS3ClientWith(client S3API, region, publicBase string) *AWSS3Client {
	return &AWSS3Client{
		region:     region,
		publicBase: strings.TrimRight(publicBase, "/"),
		client:     client,
	}
}

// CreateBucket makes the bucket public through a bucket policy. New AWS buckets
// enforce bucket owner object ownership, which rejects canned ACLs.
func (c *AWSS3Client) CreateBucket(ctx context.Context, name string) error {
	if err := s3utils.CheckValidBucketName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if c.region != "" && c.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.region),
		}
	}
	if _, err := c.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		switch {
		case errors.As(err, &owned):
			if err := c.setPublicPolicy(ctx, name); err != nil {
				return err
			}
			return ErrAlbumExists
		case errors.As(err, &exists):
			return ErrAlbumExists
		}
		return fmt.Errorf("create bucket %s: %w", name, err)
	}
	return c.setPublicPolicy(ctx, name)
}

// setPublicPolicy lifts the default public access block and grants anonymous reads.
// S3-compatible stores without public access blocks answer NotImplemented, which is ignored.
func (c *AWSS3Client) setPublicPolicy(ctx context.Context, name string) error {
	_, err := c.client.DeletePublicAccessBlock(ctx, &s3.DeletePublicAccessBlockInput{Bucket: aws.String(name)})
	if err != nil && !isUnsupported(err) {
		return fmt.Errorf("delete public access block of %s: %w", name, err)
	}
	_, err = c.client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(name),
		Policy: aws.String(publicReadPolicy(name)),
	})
	if err != nil {
		return fmt.Errorf("set public policy on %s: %w", name, err)
	}
	return nil
}

func (c *AWSS3Client) BucketExists(ctx context.Context, name string) (bool, error) {
	if s3utils.CheckValidBucketName(name) != nil {
		return false, nil
	}
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head bucket %s: %w", name, err)
	}
	return true, nil
}

func (c *AWSS3Client) ListBuckets(ctx context.Context) ([]string, error) {
	out, err := c.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	result := make([]string, 0, len(out.Buckets))
	for _, bucket := range out.Buckets {
		result = append(result, aws.ToString(bucket.Name))
	}
	return result, nil
}

func (c *AWSS3Client) UploadFile(ctx context.Context, bucket, key, path string, metadata map[string]string) (ObjectInfo, error) {
	if err := s3utils.CheckValidObjectName(key); err != nil {
		return ObjectInfo{}, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	file, err := os.Open(path)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("open staged file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat staged file: %w", err)
	}

	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentTypeOf(key)),
		Metadata:      metadata,
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}
	return ObjectInfo{
		Name:      key,
		Size:      stat.Size(),
		MediaLink: c.mediaLink(bucket, key),
	}, nil
}

// ListObjects walks every page of the listing.
func (c *AWSS3Client) ListObjects(ctx context.Context, bucket string) ([]ObjectInfo, error) {
	result := make([]ObjectInfo, 0)
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{Bucket: aws.String(bucket)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects of %s: %w", bucket, err)
		}
		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			result = append(result, ObjectInfo{
				Name:      key,
				Size:      aws.ToInt64(object.Size),
				MediaLink: c.mediaLink(bucket, key),
			})
		}
	}
	return result, nil
}

func (c *AWSS3Client) CopyObject(ctx context.Context, srcBucket, dstBucket, key string) error {
	_, err := c.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(key),
		CopySource: aws.String(srcBucket + "/" + url.PathEscape(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return ErrImageNotFound
		}
		return fmt.Errorf("copy %s/%s to %s: %w", srcBucket, key, dstBucket, err)
	}
	return nil
}

func (c *AWSS3Client) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return ErrImageNotFound
		}
		return fmt.Errorf("head object %s/%s: %w", bucket, key, err)
	}
	if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("delete object %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (c *AWSS3Client) mediaLink(bucket, key string) string {
	if c.publicBase != "" {
		return fmt.Sprintf("%s/%s/%s", c.publicBase, bucket, url.PathEscape(key))
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, c.region, url.PathEscape(key))
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}

func isUnsupported(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotImplemented", "NoSuchPublicAccessBlockConfiguration":
			return true
		}
	}
	return false
}
