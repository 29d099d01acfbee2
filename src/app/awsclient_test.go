package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps buckets in memory and pages ListObjectsV2 one key at a time.
type fakeS3 struct {
	buckets  map[string]map[string][]byte
	order    []string
	creates  []*s3.CreateBucketInput
	unblocks []string
	policies map[string]string
	puts     []*s3.PutObjectInput
	copies   []*s3.CopyObjectInput
	pages    int

	// policyErr fails the next PutBucketPolicy call.
	policyErr     error
	// noAccessBlock answers DeletePublicAccessBlock like a store without the feature.
	noAccessBlock bool
}

func newFakeS3(buckets ...string) *fakeS3 {
	f := &fakeS3{buckets: map[string]map[string][]byte{}, policies: map[string]string{}}
	for _, b := range buckets {
		f.buckets[b] = map[string][]byte{}
		f.order = append(f.order, b)
	}
	return f
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.creates = append(f.creates, in)
	name := aws.ToString(in.Bucket)
	if _, ok := f.buckets[name]; ok {
		return nil, &types.BucketAlreadyOwnedByYou{}
	}
	f.buckets[name] = map[string][]byte{}
	f.order = append(f.order, name)
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) DeletePublicAccessBlock(_ context.Context, in *s3.DeletePublicAccessBlockInput, _ ...func(*s3.Options)) (*s3.DeletePublicAccessBlockOutput, error) {
	if f.noAccessBlock {
		return nil, &smithy.GenericAPIError{Code: "NotImplemented", Message: "not implemented"}
	}
	f.unblocks = append(f.unblocks, aws.ToString(in.Bucket))
	return &s3.DeletePublicAccessBlockOutput{}, nil
}

func (f *fakeS3) PutBucketPolicy(_ context.Context, in *s3.PutBucketPolicyInput, _ ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error) {
	if err := f.policyErr; err != nil {
		f.policyErr = nil
		return nil, err
	}
	f.policies[aws.ToString(in.Bucket)] = aws.ToString(in.Policy)
	return &s3.PutBucketPolicyOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if _, ok := f.buckets[aws.ToString(in.Bucket)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) ListBuckets(context.Context, *s3.ListBucketsInput, ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	out := &s3.ListBucketsOutput{}
	for _, name := range f.order {
		out.Buckets = append(out.Buckets, types.Bucket{Name: aws.String(name)})
	}
	return out, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	f.buckets[aws.ToString(in.Bucket)][aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.pages++
	objects := f.buckets[aws.ToString(in.Bucket)]
	keys := make([]string, 0, len(objects))
	for k := range objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == aws.ToString(in.ContinuationToken) {
				start = i
			}
		}
	}
	out := &s3.ListObjectsV2Output{}
	if start < len(keys) {
		key := keys[start]
		out.Contents = []types.Object{{Key: aws.String(key), Size: aws.Int64(int64(len(objects[key])))}}
	}
	if start+1 < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[start+1])
	}
	return out, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.copies = append(f.copies, in)
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.buckets[aws.ToString(in.Bucket)][aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.buckets[aws.ToString(in.Bucket)], aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestAWSS3Client(t *testing.T) {
	ctx := context.Background()

	t.Run("bucket lifecycle", func(t *testing.T) {
		fake := newFakeS3()
		client := NewAWSS3ClientWith(fake, "eu-west-1", "")

		require.NoError(t, client.CreateBucket(ctx, "first_album"))
		require.Len(t, fake.creates, 1)
		assert.Empty(t, fake.creates[0].ACL)
		assert.Empty(t, fake.creates[0].ObjectOwnership)
		assert.Equal(t, types.BucketLocationConstraint("eu-west-1"), fake.creates[0].CreateBucketConfiguration.LocationConstraint)
		assert.Equal(t, []string{"first_album"}, fake.unblocks)
		assert.Equal(t, publicReadPolicy("first_album"), fake.policies["first_album"])

		assert.ErrorIs(t, client.CreateBucket(ctx, "first_album"), ErrAlbumExists)
		assert.ErrorIs(t, client.CreateBucket(ctx, "x"), ErrInvalidName)

		exists, err := client.BucketExists(ctx, "first_album")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = client.BucketExists(ctx, "second_album")
		require.NoError(t, err)
		assert.False(t, exists)

		buckets, err := client.ListBuckets(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"first_album"}, buckets)
	})

	t.Run("upload is public with metadata", func(t *testing.T) {
		fake := newFakeS3("album")
		client := NewAWSS3ClientWith(fake, "eu-west-1", "")
		path := filepath.Join(t.TempDir(), "staged.jpg")
		require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0o600))

		info, err := client.UploadFile(ctx, "album", "image.jpg", path, map[string]string{"description": imageDescription})
		require.NoError(t, err)

		assert.Equal(t, "https://album.s3.eu-west-1.amazonaws.com/image.jpg", info.MediaLink)
		assert.Equal(t, int64(4), info.Size)
		require.Len(t, fake.puts, 1)
		assert.Empty(t, fake.puts[0].ACL)
		assert.Equal(t, imageDescription, fake.puts[0].Metadata["description"])
		assert.Equal(t, []byte("jpeg"), fake.buckets["album"]["image.jpg"])
	})

	t.Run("list walks all pages", func(t *testing.T) {
		fake := newFakeS3("album")
		fake.buckets["album"]["a.jpg"] = []byte("a")
		fake.buckets["album"]["b.jpg"] = []byte("b")
		fake.buckets["album"]["c.jpg"] = []byte("c")
		client := NewAWSS3ClientWith(fake, "us-east-1", "http://cdn.local")

		objects, err := client.ListObjects(ctx, "album")
		require.NoError(t, err)
		require.Len(t, objects, 3)
		assert.Equal(t, 3, fake.pages)
		assert.Equal(t, "http://cdn.local/album/c.jpg", objects[2].MediaLink)
	})

	t.Run("copy source and delete", func(t *testing.T) {
		fake := newFakeS3("src", "dst")
		fake.buckets["src"]["my image.jpg"] = []byte("x")
		client := NewAWSS3ClientWith(fake, "us-east-1", "")

		require.NoError(t, client.CopyObject(ctx, "src", "dst", "my image.jpg"))
		require.Len(t, fake.copies, 1)
		assert.Equal(t, "src/my%20image.jpg", aws.ToString(fake.copies[0].CopySource))
		assert.Empty(t, fake.copies[0].ACL)

		require.NoError(t, client.DeleteObject(ctx, "src", "my image.jpg"))
		assert.ErrorIs(t, client.DeleteObject(ctx, "src", "my image.jpg"), ErrImageNotFound)
	})

	t.Run("retry after policy failure", func(t *testing.T) {
		fake := newFakeS3()
		fake.policyErr = errors.New("access denied")
		client := NewAWSS3ClientWith(fake, "us-east-1", "")

		err := client.CreateBucket(ctx, "photos")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrAlbumExists)
		assert.Empty(t, fake.policies)
		assert.Nil(t, fake.creates[0].CreateBucketConfiguration)

		assert.ErrorIs(t, client.CreateBucket(ctx, "photos"), ErrAlbumExists)
		assert.Equal(t, publicReadPolicy("photos"), fake.policies["photos"])
	})

	t.Run("store without public access block", func(t *testing.T) {
		fake := newFakeS3()
		fake.noAccessBlock = true
		client := NewAWSS3ClientWith(fake, "us-east-1", "http://localhost:9000")

		require.NoError(t, client.CreateBucket(ctx, "photos"))
		assert.Equal(t, publicReadPolicy("photos"), fake.policies["photos"])
	})

	t.Run("isNotFound", func(t *testing.T) {
		assert.True(t, isNotFound(&types.NoSuchKey{}))
		assert.False(t, isNotFound(errors.New("network down")))
	})
}
