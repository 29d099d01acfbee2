package app

import (
	"context"
	"errors"
	"io"
)

var (
	ErrAlbumNotFound = errors.New("album not found")
	ErrImageNotFound = errors.New("image not found")
	ErrAlbumExists   = errors.New("album already exists")
	ErrInvalidName   = errors.New("invalid name")
	// ErrNoMediaLink is returned when the backend accepted an upload but gave no public link for it.
	ErrNoMediaLink = errors.New("unknown upload error: no media link")
)

// imageDescription is attached to every uploaded object as user metadata.
const imageDescription = "Gallery image"

type (
	// Album is a named group of images, stored 1:1 as a bucket.
	Album struct {
		Name   string           `json:"name"`
		Images ImagesCollection `json:"-"`
	}

	// Image is a single object inside an album bucket.
	Image struct {
		Name string `json:"name"`

		// Public access URL of the object.
		URL string `json:"url"`

		// Same as URL, no thumbnails are generated.
		Preview string `json:"preview"`
	}

	AlbumsCollection interface {
		Create(ctx context.Context, name string) (*Album, error)
		Get(ctx context.Context, name string) (*Album, error)
		List(ctx context.Context) ([]*Album, error)
	}

	ImagesCollection interface {
		Create(ctx context.Context, name string, data io.Reader) (*Image, error)
		List(ctx context.Context) ([]*Image, error)
		Move(ctx context.Context, name, album string) error
		Delete(ctx context.Context, name string) error
		Purge(ctx context.Context) error
	}

	// ObjectInfo is what a Backend reports about a stored object.
	ObjectInfo struct {
		Name      string
		MediaLink string
		Size      int64
	}

	// Backend is the bucket/object API the collections are built on.
	Backend interface {
		CreateBucket(ctx context.Context, name string) error
		BucketExists(ctx context.Context, name string) (bool, error)
		ListBuckets(ctx context.Context) ([]string, error)
		// UploadFile uploads the local file at path with public read access.
		UploadFile(ctx context.Context, bucket, key, path string, metadata map[string]string) (ObjectInfo, error)
		ListObjects(ctx context.Context, bucket string) ([]ObjectInfo, error)
		CopyObject(ctx context.Context, srcBucket, dstBucket, key string) error
		DeleteObject(ctx context.Context, bucket, key string) error
	}
)

func newImage(object ObjectInfo) *Image {
	return &Image{
		Name:    object.Name,
		URL:     object.MediaLink,
		Preview: object.MediaLink,
	}
}
